package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/stakingsvc"
)

const defaultPollInterval = time.Minute

// LocalConfig is the persisted configuration of this manager instance.
type LocalConfig struct {
	DataDir string                   `yaml:"data_dir"`
	EventDB string                   `yaml:"event_db,omitempty"`
	Staking stakingsvc.ServiceConfig `yaml:"staking"`

	Listen         string `yaml:"listen,omitempty"`
	AllowedOrigins string `yaml:"allowed_origins,omitempty"`

	// PollInterval caps how long the daemon sleeps between checks
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	// Pools cranked by the daemon. Empty means every pool in the database
	Pools []lsd.Address `yaml:"pools,omitempty"`
}

func (c *LocalConfig) String() string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("DataDir: %s, EventDB: %s, ", c.DataDir, c.EventDB))
	out.WriteString(fmt.Sprintf("Staking: {%s}, ", c.Staking))
	out.WriteString(fmt.Sprintf("Listen: %s, PollInterval: %v, Pools: %d", c.Listen, c.PollInterval, len(c.Pools)))
	return out.String()
}

// AddPool records pool as managed, reporting whether it was new.
func (c *LocalConfig) AddPool(pool lsd.Address) bool {
	if slices.Contains(c.Pools, pool) {
		return false
	}
	c.Pools = append(c.Pools, pool)
	return true
}

func defaultConfig() (*LocalConfig, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &LocalConfig{
		DataDir:      filepath.Join(cfgDir, "lsd", "data"),
		EventDB:      filepath.Join(cfgDir, "lsd", "events.db"),
		PollInterval: defaultPollInterval,
	}, nil
}

// ConfigFilename returns override if set, otherwise lsd/lsd.yaml under the user config dir. The
// directory is created if missing.
func ConfigFilename(override string) (string, error) {
	cfgPath := override
	if cfgPath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		cfgPath = filepath.Join(cfgDir, "lsd", "lsd.yaml")
	}
	err := os.MkdirAll(filepath.Dir(cfgPath), 0775) // user+group RWX, others RX
	if err != nil {
		return "", fmt.Errorf("error making directory:%s, error:%w", filepath.Dir(cfgPath), err)
	}
	return cfgPath, nil
}

// LoadConfig reads cfgPath, returning the defaults if it doesn't exist yet.
func LoadConfig(cfgPath string) (*LocalConfig, error) {
	cfg, err := defaultConfig()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err = yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("error reading configuration %s: %w", cfgPath, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return cfg, nil
}

// SaveConfig writes cfg into a temp file first and only replaces cfgPath if that succeeded.
func SaveConfig(cfgPath string, cfg *LocalConfig) error {
	temp, err := os.CreateTemp(filepath.Dir(cfgPath), filepath.Base(cfgPath)+".*")
	if err != nil {
		return err
	}
	encoder := yaml.NewEncoder(temp)
	encoder.SetIndent(2)
	err = encoder.Encode(cfg)
	if err == nil {
		err = encoder.Close()
	}
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving configuration: %w", err)
	}

	err = temp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(temp.Name(), cfgPath)
	if err != nil {
		return err
	}
	slog.Info("config saved", "file", cfgPath)
	return nil
}
