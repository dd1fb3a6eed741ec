package lsd

import (
	"errors"

	"github.com/google/uuid"

	"github.com/TxnLab/lsd/internal/lib/store"
)

func stakeManagerKey(pool Address) string {
	return store.Key(keyStakeManager, pool.String())
}

func unstakeAccountKey(pool Address, id uuid.UUID) string {
	return store.Key(keyUnstakeAccount, pool.String(), id.String())
}

func externalRequestKey(pool Address, id string) string {
	return store.Key(keyExternalRequest, pool.String(), id)
}

func balanceKey(asset, owner Address) string {
	return store.Key(keyBalance, asset.String(), owner.String())
}

func supplyKey(asset Address) string {
	return store.Key(keySupply, asset.String())
}

func loadStakeManager(tx *store.Tx, pool Address) (*StakeManager, error) {
	sm := &StakeManager{}
	err := tx.Get(stakeManagerKey(pool), sm)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrStakeManagerNotFound
	}
	if err != nil {
		return nil, err
	}
	return sm, nil
}

func loadUnstakeAccount(tx *store.Tx, pool Address, id uuid.UUID) (*UnstakeAccount, error) {
	ua := &UnstakeAccount{}
	err := tx.Get(unstakeAccountKey(pool, id), ua)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidUnstakeAccount
	}
	if err != nil {
		return nil, err
	}
	return ua, nil
}

func loadExternalRequest(tx *store.Tx, pool Address, id string) (*ExternalUnstakeRequest, error) {
	req := &ExternalUnstakeRequest{}
	err := tx.Get(externalRequestKey(pool, id), req)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrExternalRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func balanceOf(tx *store.Tx, asset, owner Address) (uint64, error) {
	return tx.GetUint64(balanceKey(asset, owner))
}

func supplyOf(tx *store.Tx, asset Address) (uint64, error) {
	return tx.GetUint64(supplyKey(asset))
}

// credit mints amount of asset to owner.
func credit(tx *store.Tx, asset, owner Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := balanceOf(tx, asset, owner)
	if err != nil {
		return err
	}
	supply, err := supplyOf(tx, asset)
	if err != nil {
		return err
	}
	if bal, err = addU64(bal, amount); err != nil {
		return err
	}
	if supply, err = addU64(supply, amount); err != nil {
		return err
	}
	if err = tx.PutUint64(balanceKey(asset, owner), bal); err != nil {
		return err
	}
	return tx.PutUint64(supplyKey(asset), supply)
}

// debit burns amount of asset from owner.
func debit(tx *store.Tx, asset, owner Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := balanceOf(tx, asset, owner)
	if err != nil {
		return err
	}
	if bal < amount {
		return ErrBalanceNotEnough
	}
	supply, err := supplyOf(tx, asset)
	if err != nil {
		return err
	}
	if supply, err = subU64(supply, amount); err != nil {
		return err
	}
	if err = tx.PutUint64(balanceKey(asset, owner), bal-amount); err != nil {
		return err
	}
	return tx.PutUint64(supplyKey(asset), supply)
}

func transfer(tx *store.Tx, asset, from, to Address, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := balanceOf(tx, asset, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrBalanceNotEnough
	}
	toBal, err := balanceOf(tx, asset, to)
	if err != nil {
		return err
	}
	if toBal, err = addU64(toBal, amount); err != nil {
		return err
	}
	if err = tx.PutUint64(balanceKey(asset, from), fromBal-amount); err != nil {
		return err
	}
	return tx.PutUint64(balanceKey(asset, to), toBal)
}
