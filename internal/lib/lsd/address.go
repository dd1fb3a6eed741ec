package lsd

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Address identifies an account, asset, or pool. Text form is base58.
type Address [32]byte

var ZeroAddress Address

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := base58.Decode(s)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: decoded to %d bytes, expected %d", s, len(raw), len(addr))
	}
	copy(addr[:], raw)
	return addr, nil
}

// NamedAddress hashes an arbitrary name into an address. Handy for dev accounts and assets.
func NamedAddress(name string) Address {
	return blake2b.Sum256([]byte(name))
}

// DeriveAddress returns blake2b-256(seed || creator || index). It is the only scheme used for
// pool-owned identities.
func DeriveAddress(seed string, creator Address, index uint8) Address {
	buf := make([]byte, 0, len(seed)+len(creator)+1)
	buf = append(buf, seed...)
	buf = append(buf, creator[:]...)
	buf = append(buf, index)
	return blake2b.Sum256(buf)
}

// StakeManagerAddress is the pool address. It also owns the pool vault and is the staker the
// external staking service sees.
func StakeManagerAddress(creator Address, index uint8) Address {
	return DeriveAddress(StakeManagerSeed, creator, index)
}

// LsdTokenMintAddress is the derivative token identity of a pool.
func LsdTokenMintAddress(creator Address, index uint8) Address {
	return DeriveAddress(LsdTokenMintSeed, creator, index)
}
