package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

func poolFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "pool",
		Usage:   "Pool address. Can be omitted if the config manages a single pool",
		Aliases: []string{"p"},
	}
}

func fromFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "from",
		Usage:    "The account (address or @name) the operation is performed as",
		Required: true,
	}
}

func GetPoolCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Create and administer liquid staking pools",
		Before:  openManager,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create a new pool bound to a staking service pool. Prompts for anything not given as flags",
				Action: PoolInit,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "admin",
						Usage: "Admin account of the pool",
					},
					&cli.StringFlag{
						Name:  "creator",
						Usage: "Creator account the pool address is derived from.  Defaults to the admin",
					},
					&cli.UintFlag{
						Name:  "index",
						Usage: "Pool index for this creator (0-255)",
						Value: 0,
					},
					&cli.DurationFlag{
						Name:  "era",
						Usage: "Era length, ie: 24h",
					},
					&cli.StringFlag{
						Name:  "staking-pool",
						Usage: "Pool in the staking service the stake is delegated to",
					},
				},
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List pools",
				Action:  PoolsList,
			},
			{
				Name:   "info",
				Usage:  "Show details of a pool",
				Action: PoolInfo,
				Flags:  []cli.Flag{poolFlag()},
			},
			{
				Name:   "rates",
				Usage:  "Show the recent era rates of a pool",
				Action: PoolRates,
				Flags:  []cli.Flag{poolFlag()},
			},
			{
				Name:   "requests",
				Usage:  "List unbonds still held by the staking service",
				Action: PoolRequests,
				Flags:  []cli.Flag{poolFlag()},
			},
			{
				Name:   "config",
				Usage:  "Change pool parameters (admin only)",
				Action: PoolConfigure,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:  "min-stake",
						Usage: "Minimum stake amount, ie: 1.5",
					},
					&cli.StringFlag{
						Name:  "fee",
						Usage: "Platform fee percentage of rewards, ie: 10",
					},
					&cli.StringFlag{
						Name:  "rate-limit",
						Usage: "Maximum rate change percentage per era, ie: 0.1",
					},
				},
			},
			{
				Name:   "transfer-admin",
				Usage:  "Propose a new admin.  Takes effect once accepted",
				Action: PoolTransferAdmin,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:     "to",
						Usage:    "The proposed admin",
						Required: true,
					},
				},
			},
			{
				Name:   "accept-admin",
				Usage:  "Accept a pending admin transfer",
				Action: PoolAcceptAdmin,
				Flags:  []cli.Flag{poolFlag(), fromFlag()},
			},
			{
				Name:   "drop-request",
				Usage:  "Settle an external unbond the staking service already released without the pool recording it",
				Action: PoolDropRequest,
				Flags: []cli.Flag{
					poolFlag(),
					fromFlag(),
					&cli.StringFlag{
						Name:     "request",
						Usage:    "The external unstake request id (see pool requests)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "recovered",
						Usage: "Base asset amount the staking service paid out for the request",
						Value: "0",
					},
				},
			},
		},
	}
}

// poolFromCmd returns the --pool address, or the configured pool if only one is managed.
func poolFromCmd(cmd *cli.Command) (lsd.Address, error) {
	if pool := cmd.String("pool"); pool != "" {
		return parseAddress(pool)
	}
	if len(App.config.Pools) == 1 {
		return App.config.Pools[0], nil
	}
	return lsd.ZeroAddress, errors.New("--pool must be specified")
}

func accountFromCmd(cmd *cli.Command, name string) (lsd.Address, error) {
	addr, err := parseAddress(cmd.String(name))
	if err != nil {
		return addr, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return addr, nil
}

func PoolInit(ctx context.Context, cmd *cli.Command) error {
	var (
		params lsd.InitParams
		err    error
	)
	if admin := cmd.String("admin"); admin != "" {
		if params.Admin, err = accountFromCmd(cmd, "admin"); err != nil {
			return err
		}
	}
	if creator := cmd.String("creator"); creator != "" {
		if params.Creator, err = accountFromCmd(cmd, "creator"); err != nil {
			return err
		}
	} else {
		params.Creator = params.Admin
	}
	index := cmd.Uint("index")
	if index > 255 {
		return fmt.Errorf("index must be between 0 and 255")
	}
	params.Index = uint8(index)
	params.EraSeconds = int64(cmd.Duration("era") / time.Second)
	params.StakingPool = cmd.String("staking-pool")

	if params.Admin.IsZero() || params.Creator.IsZero() || params.EraSeconds <= 0 || params.StakingPool == "" {
		if err = promptInitParams(&params); err != nil {
			return err
		}
	}

	sm, err := App.manager.InitializeStakeManager(ctx, params)
	if err != nil {
		return err
	}
	if App.config.AddPool(sm.Address) {
		if err = SaveConfig(App.configPath, App.config); err != nil {
			return err
		}
	}
	fmt.Print(sm.String())
	return nil
}

func PoolsList(ctx context.Context, cmd *cli.Command) error {
	pools, err := App.manager.ListStakeManagers()
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Pool (*=Managed)\tEra\tStatus\tRate\tActive\tPlatform Fees\t")
	for _, sm := range pools {
		var managed string
		for _, pool := range App.config.Pools {
			if pool == sm.Address {
				managed = " (*)"
			}
		}
		fmt.Fprintf(tw, "%s%s\t%d\t%s\t%s\t%s\t%s\t\n", sm.Address, managed, sm.LatestEra, sm.EraStatus,
			lsd.FormattedAmount(sm.Rate), lsd.FormattedAmount(sm.Active), lsd.FormattedAmount(sm.TotalPlatformFee))
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolInfo(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	sm, err := App.manager.GetStakeManager(pool)
	if err != nil {
		return err
	}
	supply, err := App.manager.Supply(sm.LsdTokenMint)
	if err != nil {
		return err
	}
	vault, err := App.manager.Balance(sm.StakingTokenMint, sm.Address)
	if err != nil {
		return err
	}
	fmt.Print(sm.String())
	fmt.Printf("LSD Token Supply: %s\n", lsd.FormattedAmount(supply))
	fmt.Printf("Vault Balance: %s\n", lsd.FormattedAmount(vault))
	currentEra, err := sm.CalcCurrentEra(App.manager.Now())
	if err == nil {
		fmt.Printf("Current Era: %d, next era starts %s\n", currentEra, sm.EraStart(currentEra+1).Local().Format(time.RFC1123))
	}
	return nil
}

func PoolRates(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	rates, err := App.manager.EraRates(pool)
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Era\tRate\t")
	for _, rate := range rates {
		fmt.Fprintf(tw, "%d\t%s\t\n", rate.Era, lsd.FormattedAmount(rate.Rate))
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolRequests(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	requests, err := App.manager.ExternalRequests(pool)
	if err != nil {
		return err
	}
	now := App.manager.Now()
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Request\tEra\tAmount\tWithdrawable\tMatured\t")
	for _, req := range requests {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%v\t\n", req.ID, req.Era, lsd.FormattedAmount(req.Amount),
			time.Unix(req.WithdrawableTimestamp, 0).Local().Format(time.DateTime), req.Matured(now))
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolConfigure(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	caller, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	var update lsd.ConfigUpdate
	if val := cmd.String("min-stake"); val != "" {
		amount, err := parseAmount(val)
		if err != nil {
			return err
		}
		update.MinStakeAmount = &amount
	}
	if val := cmd.String("fee"); val != "" {
		fee, err := parsePercent(val)
		if err != nil {
			return err
		}
		update.PlatformFeeCommission = &fee
	}
	if val := cmd.String("rate-limit"); val != "" {
		limit, err := parsePercent(val)
		if err != nil {
			return err
		}
		update.RateChangeLimit = &limit
	}
	sm, err := App.manager.Configure(ctx, pool, caller, update)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "pool %s configured, min stake:%s fee:%s%% rate limit:%s%%", sm.Address,
		lsd.FormattedAmount(sm.MinStakeAmount), lsd.FormattedAmount(sm.PlatformFeeCommission*100),
		lsd.FormattedAmount(sm.RateChangeLimit*100))
	return nil
}

func PoolTransferAdmin(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	caller, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	newAdmin, err := accountFromCmd(cmd, "to")
	if err != nil {
		return err
	}
	if _, err = App.manager.TransferAdmin(ctx, pool, caller, newAdmin); err != nil {
		return err
	}
	misc.Infof(App.logger, "admin transfer to %s proposed, must be accepted by the new admin", newAdmin)
	return nil
}

func PoolAcceptAdmin(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	caller, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	sm, err := App.manager.AcceptAdmin(ctx, pool, caller)
	if err != nil {
		return err
	}
	misc.Infof(App.logger, "admin of pool %s is now %s", sm.Address, sm.Admin)
	return nil
}

func PoolDropRequest(ctx context.Context, cmd *cli.Command) error {
	pool, err := poolFromCmd(cmd)
	if err != nil {
		return err
	}
	caller, err := accountFromCmd(cmd, "from")
	if err != nil {
		return err
	}
	recovered, err := parseAmount(cmd.String("recovered"))
	if err != nil {
		return fmt.Errorf("invalid --recovered: %w", err)
	}
	result, err := yesNo(fmt.Sprintf("Drop external request %s and credit %s to the pool vault", cmd.String("request"), lsd.FormattedAmount(recovered)))
	if result != "y" {
		if err == nil {
			err = errors.New("aborted")
		}
		return err
	}
	if _, err = App.manager.DropExternalRequest(ctx, pool, caller, cmd.String("request"), recovered); err != nil {
		return err
	}
	misc.Infof(App.logger, "external request %s dropped", cmd.String("request"))
	return nil
}
