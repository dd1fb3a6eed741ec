package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/TxnLab/lsd/internal/lib/eventlog"
	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
	"github.com/TxnLab/lsd/internal/lib/stakingsvc"
	"github.com/TxnLab/lsd/internal/lib/store"
)

var logLevel = new(slog.LevelVar) // Info by default

func newLogger(out io.Writer, interactive bool) *slog.Logger {
	if interactive {
		// output is a tty - so we're being run as CLI vs as a daemon
		return slog.New(misc.NewMinimalHandler(out,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	}
	// not on console - output as json, but change json key names to be more compatible w/ what google logging
	// expects
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Key = "message"
			} else if a.Key == slog.LevelKey && len(groups) == 0 {
				a.Key = "severity"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func initApp() *LsdApp {
	log.SetFlags(0)
	logger := newLogger(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	appConfig := &LsdApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "lsdmgr",
		Usage:   "Liquid staking pool manager and era scheduler",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// flags and env are parsed by now so the config can be bootstrapped
			return appConfig.initConfig(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("LSD_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "Loads .env.<profile> overrides, ie: sandbox",
				Sources: cli.EnvVars("LSD_PROFILE"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Config file path. Defaults to lsd/lsd.yaml in the user config dir",
				Sources: cli.EnvVars("LSD_CONFIG"),
				Aliases: []string{"c"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Directory of the pool state database",
				Sources: cli.EnvVars("LSD_DB"),
			},
			&cli.StringFlag{
				Name:    "eventdb",
				Usage:   "sqlite file indexing pool events. Empty disables the index",
				Sources: cli.EnvVars("LSD_EVENT_DB"),
			},
			&cli.StringFlag{
				Name:    "staking-url",
				Usage:   "URL of the external staking service",
				Sources: cli.EnvVars("LSD_STAKING_URL"),
			},
			&cli.StringFlag{
				Name:    "staking-token",
				Usage:   "Bearer token for the external staking service",
				Sources: cli.EnvVars("LSD_STAKING_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Also write JSON logs to this (size rotated) file",
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetPoolCmdOpts(),
			GetStakerCmdOpts(),
			GetEraCmdOpts(),
			GetFundCmdOpts(),
			GetSimulatorCmdOpts(),
		},
	}
	return appConfig
}

type LsdApp struct {
	cliCmd *cli.Command
	logger *slog.Logger

	configPath string
	config     *LocalConfig

	store   *store.Store
	events  *eventlog.Log
	staking lsd.StakingService
	manager *lsd.Manager

	closers []io.Closer
}

// initConfig loads env files and the config file and applies command line overrides. Nothing is
// opened yet, commands needing the pool state call openManager.
func (ac *LsdApp) initConfig(ctx context.Context, cmd *cli.Command) error {
	if envfile := cmd.String("envfile"); envfile != "" {
		if err := loadNamedEnvFile(ctx, envfile); err != nil {
			return err
		}
	}
	misc.LoadEnvForProfile(ac.logger, cmd.String("profile"))

	if logfile := cmd.String("logfile"); logfile != "" {
		file := misc.NewRotatingFile(logfile, misc.RotatingFileOptions{MaxBackups: 5, MaxAgeDays: 30})
		ac.closers = append(ac.closers, file)
		ac.logger = newLogger(io.MultiWriter(os.Stdout, file), false)
		slog.SetDefault(ac.logger)
	}

	cfgPath, err := ConfigFilename(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if db := cmd.String("db"); db != "" {
		cfg.DataDir = db
	}
	if eventDB := cmd.String("eventdb"); eventDB != "" {
		cfg.EventDB = eventDB
	}
	cfg.Staking.ApplyEnv()
	if stakingURL := cmd.String("staking-url"); stakingURL != "" {
		cfg.Staking.URL = stakingURL
	}
	if token := cmd.String("staking-token"); token != "" {
		cfg.Staking.Token = token
	}
	ac.configPath = cfgPath
	ac.config = cfg
	misc.Debugf(ac.logger, "config %s: %s", cfgPath, cfg)
	return nil
}

// openManager opens the state store, the event index and the staking service client.
func openManager(ctx context.Context, cmd *cli.Command) error {
	return App.openManager()
}

func (ac *LsdApp) openManager() error {
	if ac.manager != nil {
		return nil
	}
	if ac.config.DataDir == "" {
		return errors.New("no database directory configured, set --db or data_dir in the config file")
	}
	st, err := store.Open(ac.config.DataDir)
	if err != nil {
		return err
	}
	ac.store = st
	ac.closers = append(ac.closers, st)

	sinks := []lsd.EventSink{lsd.NewLogSink(ac.logger)}
	if ac.config.EventDB != "" {
		events, err := eventlog.Open(ac.logger, ac.config.EventDB)
		if err != nil {
			return err
		}
		ac.events = events
		ac.closers = append(ac.closers, events)
		sinks = append(sinks, events)
	}

	if ac.config.Staking.URL != "" {
		client, err := stakingsvc.NewClient(ac.logger, ac.config.Staking)
		if err != nil {
			return err
		}
		ac.staking = client
	} else {
		misc.Warnf(ac.logger, "no staking service configured, era operations will fail")
	}

	ac.manager = lsd.New(ac.logger, st, ac.staking, lsd.WithEventSink(sinks...))
	return nil
}

func (ac *LsdApp) close() {
	// reverse open order
	for i := len(ac.closers) - 1; i >= 0; i-- {
		if err := ac.closers[i].Close(); err != nil {
			misc.Warnf(ac.logger, "close failed: %v", err)
		}
	}
	ac.closers = nil
}

func loadNamedEnvFile(ctx context.Context, envFile string) error {
	misc.Infof(App.logger, "loading env file:%s", envFile)
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("loading env file %s: %w", envFile, err)
	}
	return nil
}
