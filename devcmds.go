package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
	"github.com/TxnLab/lsd/internal/lib/stakingsvc"
)

func GetFundCmdOpts() *cli.Command {
	return &cli.Command{
		Name:   "fund",
		Usage:  "[DEV ONLY] Credit an account with a pool's base asset",
		Before: openManager,
		Action: FundAccount,
		Flags: []cli.Flag{
			poolFlag(),
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Account (address or @name) to credit",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Amount to credit, ie: 100",
				Required: true,
			},
		},
	}
}

func FundAccount(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	to, err := accountFromCmd(cmd, "to")
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.String("amount"))
	if err != nil {
		return err
	}
	sm, err := App.manager.GetStakeManager(pool)
	if err != nil {
		return err
	}
	if err = App.manager.Fund(sm.StakingTokenMint, to, amount); err != nil {
		return err
	}
	misc.Infof(App.logger, "credited %s with %s of %s", to, lsd.FormattedAmount(amount), sm.StakingTokenMint)
	return nil
}

func GetSimulatorCmdOpts() *cli.Command {
	return &cli.Command{
		Name:   "simulator",
		Usage:  "[DEV ONLY] Serve an in-memory staking service for local testing",
		Action: runSimulator,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on",
				Value: "localhost:8090",
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Service id reported to pools",
				Value: "simulator",
			},
			&cli.StringSliceFlag{
				Name:  "pool",
				Usage: "Stake pool names to create",
				Value: []string{"sim-pool"},
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Base asset of the pools (address or @name)",
				Value: "@base",
			},
			&cli.StringFlag{
				Name:  "min-stake",
				Usage: "Minimum stake of the pools",
				Value: "1",
			},
			&cli.DurationFlag{
				Name:  "unbonding",
				Usage: "Unbonding period of the pools",
				Value: 48 * time.Hour,
			},
		},
	}
}

func runSimulator(ctx context.Context, cmd *cli.Command) error {
	tokenMint, err := accountFromCmd(cmd, "token")
	if err != nil {
		return err
	}
	minStake, err := parseAmount(cmd.String("min-stake"))
	if err != nil {
		return err
	}
	mem := stakingsvc.NewMemory(cmd.String("id"), time.Now)
	for _, pool := range cmd.StringSlice("pool") {
		mem.AddPool(lsd.StakingPoolInfo{
			Pool:             pool,
			TokenMint:        tokenMint,
			MinStakeAmount:   minStake,
			UnbondingSeconds: int64(cmd.Duration("unbonding") / time.Second),
		})
		misc.Infof(App.logger, "simulating stake pool %s, token:%s", pool, tokenMint)
	}

	router := mux.NewRouter()
	stakingsvc.NewServer(mem).Mount(router, "/")
	server := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		misc.Infof(App.logger, "staking simulator %s listening on %s", mem.ID(), server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	misc.Infof(App.logger, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
