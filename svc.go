package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lsd/internal/lib/api"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

func GetDaemonCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the era scheduler (and optionally the REST API) as a daemon",
		Before:  openManager,
		Action:  runAsDaemon,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address to serve the REST API and metrics on, ie: :8080.  Empty disables it",
				Sources: cli.EnvVars("LSD_LISTEN"),
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Maximum time between pool checks",
			},
		},
	}
}

func runAsDaemon(ctx context.Context, cmd *cli.Command) error {
	var wg sync.WaitGroup

	listen := App.config.Listen
	if cmd.String("listen") != "" {
		listen = cmd.String("listen")
	}
	pollInterval := App.config.PollInterval
	if cmd.Duration("poll") > 0 {
		pollInterval = cmd.Duration("poll")
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler so SIGINT and SIGTERM stop the services gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)

	newDaemon(App.logger, App.manager, App.config.Pools, pollInterval).start(ctx, &wg)

	var server *http.Server
	if listen != "" {
		var events api.EventQuerier
		if App.events != nil {
			events = App.events
		}
		server = &http.Server{
			Addr: listen,
			Handler: api.New(App.logger, App.manager, events, api.Options{
				AllowedOrigins:  App.config.AllowedOrigins,
				EnableReqLogger: true,
				EnableMetrics:   true,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			misc.Infof(App.logger, "serving api on %s", listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	misc.Infof(App.logger, "exiting (%v)", <-errc) // wait for termination signal

	// Send cancellation signal to the goroutines.
	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			misc.Warnf(App.logger, "api shutdown: %v", err)
		}
	}
	misc.Infof(App.logger, "waiting on background tasks..")
	wg.Wait()

	misc.Infof(App.logger, "exited")
	return nil
}
