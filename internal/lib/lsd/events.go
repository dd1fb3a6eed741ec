package lsd

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/TxnLab/lsd/internal/lib/misc"
)

// Event is emitted once per successful operation, after its changes are committed.
type Event interface {
	Name() string
	PoolAddress() Address
	EraNumber() uint64
}

// EventSink receives committed events. Delivery is at-least-once and a failing sink never undoes
// the operation that produced the event.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

type EventMeta struct {
	Pool Address `json:"pool"`
	Era  uint64  `json:"era"`
}

func (m EventMeta) PoolAddress() Address { return m.Pool }
func (m EventMeta) EraNumber() uint64    { return m.Era }

type EventStake struct {
	EventMeta
	User           Address `json:"user"`
	StakeAmount    uint64  `json:"stake_amount"`
	LsdTokenAmount uint64  `json:"lsd_token_amount"`
}

type EventUnstake struct {
	EventMeta
	User           Address   `json:"user"`
	UnstakeAccount uuid.UUID `json:"unstake_account"`
	LsdTokenAmount uint64    `json:"lsd_token_amount"`
	UnstakeAmount  uint64    `json:"unstake_amount"`
}

type EventWithdraw struct {
	EventMeta
	User           Address   `json:"user"`
	UnstakeAccount uuid.UUID `json:"unstake_account"`
	WithdrawAmount uint64    `json:"withdraw_amount"`
}

type EventEraNew struct {
	EventMeta
	PendingBond   uint64    `json:"pending_bond"`
	PendingUnbond uint64    `json:"pending_unbond"`
	Status        EraStatus `json:"status"`
}

type EventEraBond struct {
	EventMeta
	BondAmount   uint64 `json:"bond_amount"`
	StakeBalance uint64 `json:"stake_balance"`
}

type EventEraUnbond struct {
	EventMeta
	UnbondAmount          uint64 `json:"unbond_amount"`
	RequestID             string `json:"request_id"`
	WithdrawableTimestamp int64  `json:"withdrawable_timestamp"`
}

type EventEraWithdraw struct {
	EventMeta
	RequestID      string `json:"request_id"`
	WithdrawAmount uint64 `json:"withdraw_amount"`
	// set when the admin settled the request by hand
	Reconciled bool `json:"reconciled,omitempty"`
}

type EventEraActive struct {
	EventMeta
	Active      uint64 `json:"active"`
	Reward      uint64 `json:"reward"`
	PlatformFee uint64 `json:"platform_fee"`
	Rate        uint64 `json:"rate"`
	RateChange  uint64 `json:"rate_change"`
}

func (EventStake) Name() string       { return "stake" }
func (EventUnstake) Name() string     { return "unstake" }
func (EventWithdraw) Name() string    { return "withdraw" }
func (EventEraNew) Name() string      { return "era_new" }
func (EventEraBond) Name() string     { return "era_bond" }
func (EventEraUnbond) Name() string   { return "era_unbond" }
func (EventEraWithdraw) Name() string { return "era_withdraw" }
func (EventEraActive) Name() string   { return "era_active" }

// LogSink writes every event to a slog logger.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	misc.Infof(s.Logger, "event %s pool:%s era:%d %+v", ev.Name(), ev.PoolAddress(), ev.EraNumber(), ev)
	return nil
}
