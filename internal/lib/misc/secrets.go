/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */
package misc

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var secretsMap = map[string]string{}

// LoadSecrets reads KEY=value pairs from a dotenv style file into the secrets store without exporting
// them to the process environment.
func LoadSecrets(path string) error {
	vals, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	for k, v := range vals {
		secretsMap[k] = v
	}
	return nil
}

func SecretKeys() []string {
	var uniqKeys = map[string]bool{}
	for _, envVal := range os.Environ() {
		key := envVal[0:strings.IndexByte(envVal, '=')]
		uniqKeys[key] = true
	}
	for k := range secretsMap {
		uniqKeys[k] = true
	}
	var retStrings []string
	for k := range uniqKeys {
		retStrings = append(retStrings, k)
	}
	return retStrings
}

func GetSecret(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return secretsMap[key]
}
