package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

func GetStakerCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "staker",
		Aliases: []string{"s"},
		Usage:   "Stake, unstake and withdraw as a pool user",
		Before:  openManager,
		Commands: []*cli.Command{
			{
				Name:   "stake",
				Usage:  "Deposit base asset and receive lsd tokens at the current rate",
				Action: StakerStake,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Base asset amount to stake, ie: 12.5",
						Required: true,
					},
				},
			},
			{
				Name:   "unstake",
				Usage:  "Burn lsd tokens, creating an unstake account withdrawable after the unbonding period",
				Action: StakerUnstake,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "lsd token amount to burn, ie: 12.5",
						Required: true,
					},
				},
			},
			{
				Name:   "withdraw",
				Usage:  "Withdraw a matured unstake account",
				Action: StakerWithdraw,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Unstake account id (see 'staker unstakes')",
						Required: true,
					},
				},
			},
			{
				Name:   "unstakes",
				Usage:  "List open unstake accounts",
				Action: StakerUnstakes,
				Flags: []cli.Flag{
					poolFlag(),
					&cli.StringFlag{
						Name:  "from",
						Usage: "Only show accounts of this user",
					},
				},
			},
			{
				Name:   "balance",
				Usage:  "Show base asset and lsd token balances of an account",
				Action: StakerBalance,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
				},
			},
		},
	}
}

func StakerStake(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	user, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.String("amount"))
	if err != nil {
		return err
	}
	sm, err := App.manager.Stake(ctx, pool, user, amount)
	if err != nil {
		return err
	}
	balance, err := App.manager.Balance(sm.LsdTokenMint, user)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "staked %s, lsd token balance now %s", lsd.FormattedAmount(amount), lsd.FormattedAmount(balance))
	return nil
}

func StakerUnstake(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	user, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.String("amount"))
	if err != nil {
		return err
	}
	ua, err := App.manager.Unstake(ctx, pool, user, amount)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "unstake account %s for %s, withdrawable from era %d", ua.ID, lsd.FormattedAmount(ua.Amount), ua.WithdrawableEra)
	return nil
}

func StakerWithdraw(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	user, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid --id: %w", err)
	}
	amount, err := App.manager.Withdraw(ctx, pool, user, id)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "withdrew %s", lsd.FormattedAmount(amount))
	return nil
}

func StakerUnstakes(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	var user lsd.Address
	if cmd.String("from") != "" {
		if user, err = accountFromCmd(cmd, "from"); err != nil {
			return err
		}
	}
	sm, err := App.manager.GetStakeManager(pool)
	if err != nil {
		return err
	}
	accounts, err := App.manager.ListUnstakeAccounts(pool, user)
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tUser\tAmount\tCreated\tWithdrawable\tReady\t")
	for _, ua := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%v\t\n", ua.ID, ua.User, lsd.FormattedAmount(ua.Amount),
			ua.CreatedEra, ua.WithdrawableEra, sm.LatestEra >= ua.WithdrawableEra)
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func StakerBalance(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	user, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	sm, err := App.manager.GetStakeManager(pool)
	if err != nil {
		return err
	}
	base, err := App.manager.Balance(sm.StakingTokenMint, user)
	if err != nil {
		return err
	}
	lsdBalance, err := App.manager.Balance(sm.LsdTokenMint, user)
	if err != nil {
		return err
	}
	value, err := sm.CalcStakingTokenAmount(lsdBalance)
	if err != nil {
		return err
	}
	fmt.Printf("Account: %s\n", user)
	fmt.Printf("Base Asset: %s\n", lsd.FormattedAmount(base))
	fmt.Printf("LSD Token: %s (worth %s at rate %s)\n", lsd.FormattedAmount(lsdBalance), lsd.FormattedAmount(value), lsd.FormattedAmount(sm.Rate))
	return nil
}
