package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
)

func GetEraCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "era",
		Aliases: []string{"e"},
		Usage:   "Run era cycle steps by hand.  Normally done by the daemon",
		Before:  openManager,
		Commands: []*cli.Command{
			{
				Name:   "new",
				Usage:  "Advance the pool to the current era",
				Flags:  []cli.Flag{poolFlag()},
				Action: eraAction((*lsd.Manager).EraNew),
			},
			{
				Name:   "bond",
				Usage:  "Stake the net pending deposit with the staking service",
				Flags:  []cli.Flag{poolFlag()},
				Action: eraAction((*lsd.Manager).EraBond),
			},
			{
				Name:   "unbond",
				Usage:  "Unstake the net pending redemption from the staking service",
				Flags:  []cli.Flag{poolFlag()},
				Action: eraAction((*lsd.Manager).EraUnbond),
			},
			{
				Name:  "withdraw",
				Usage: "Pull a matured unbond back into the pool vault",
				Flags: []cli.Flag{
					poolFlag(),
					&cli.StringFlag{
						Name:     "request",
						Usage:    "External request id (see 'pool requests')",
						Required: true,
					},
				},
				Action: EraWithdraw,
			},
			{
				Name:   "active",
				Usage:  "Claim rewards and update the pool rate",
				Flags:  []cli.Flag{poolFlag()},
				Action: eraAction((*lsd.Manager).EraActive),
			},
			{
				Name:   "crank",
				Usage:  "Run every step the pool is due for, as the daemon would",
				Flags:  []cli.Flag{poolFlag()},
				Action: EraCrank,
			},
		},
	}
}

func eraAction(op func(*lsd.Manager, context.Context, lsd.Address) (*lsd.StakeManager, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		pool, err := poolFromCmd(cmd)
		if err != nil {
			return err
		}
		sm, err := op(App.manager, ctx, pool)
		if err != nil {
			return err
		}
		printEraState(sm)
		return nil
	}
}

func printEraState(sm *lsd.StakeManager) {
	fmt.Printf("Era: %d, Status: %s, Rate: %s, Active: %s, Pending Bond: %s, Pending Unbond: %s\n",
		sm.LatestEra, sm.EraStatus, lsd.FormattedAmount(sm.Rate), lsd.FormattedAmount(sm.Active),
		lsd.FormattedAmount(sm.PendingBond), lsd.FormattedAmount(sm.PendingUnbond))
}

func EraWithdraw(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	sm, err := App.manager.EraWithdraw(ctx, pool, cmd.String("request"))
	if err != nil {
		return err
	}
	printEraState(sm)
	return nil
}

func EraCrank(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	d := newDaemon(App.logger, App.manager, []lsd.Address{pool}, App.config.PollInterval)
	if err = d.crankPool(ctx, pool); err != nil {
		return err
	}
	sm, err := App.manager.GetStakeManager(pool)
	if err != nil {
		return err
	}
	printEraState(sm)
	return nil
}
