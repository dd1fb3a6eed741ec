package lsd

const (
	// CalBase is the fixed-point base for rates, fee commissions and rate-change limits.
	CalBase uint64 = 1_000_000_000

	DefaultRate                  = CalBase
	DefaultMinStakeAmount        uint64 = 1_000_000_000
	DefaultPlatformFeeCommission uint64 = 100_000_000 // 10%
	DefaultRateChangeLimit       uint64 = 1_000_000   // 0.1%

	// EraRatesLenLimit bounds the rate history kept on each pool.
	EraRatesLenLimit = 10
)

// Seeds for the derived identities of a pool.
const (
	StakeManagerSeed = "stake_manager"
	LsdTokenMintSeed = "lsd_token_mint"
)

// Key prefixes in the backing store.
const (
	keyStakeManager    = "sm"
	keyUnstakeAccount  = "ua"
	keyExternalRequest = "xr"
	keyBalance         = "bal"
	keySupply          = "sup"
)
