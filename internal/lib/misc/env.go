/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */

package misc

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env from the working directory. Values already in the
// environment win over both.
func LoadEnvSettings(logger *slog.Logger) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err == nil {
			Debugf(logger, "loaded env settings from %s", file)
		}
	}
}

// LoadEnvForProfile loads .env.<profile>, e.g. .env.sandbox for a local simulator setup.
func LoadEnvForProfile(logger *slog.Logger, profile string) {
	if profile == "" {
		return
	}
	file := fmt.Sprintf(".env.%s", profile)
	if err := godotenv.Load(file); err != nil {
		Debugf(logger, "no env settings for profile %s: %v", profile, err)
		return
	}
	Infof(logger, "loaded env settings for profile %s", profile)
}
