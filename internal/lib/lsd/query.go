package lsd

import (
	"github.com/google/uuid"

	"github.com/TxnLab/lsd/internal/lib/store"
)

func (m *Manager) GetStakeManager(pool Address) (*StakeManager, error) {
	var sm *StakeManager
	err := m.store.View(func(tx *store.Tx) error {
		var err error
		sm, err = loadStakeManager(tx, pool)
		return err
	})
	return sm, err
}

func (m *Manager) ListStakeManagers() ([]*StakeManager, error) {
	var pools []*StakeManager
	err := m.store.View(func(tx *store.Tx) error {
		return store.IterateJSON(tx, keyStakeManager+"/", func(_ string, sm *StakeManager) error {
			pools = append(pools, sm)
			return nil
		})
	})
	return pools, err
}

func (m *Manager) EraRates(pool Address) ([]EraRate, error) {
	sm, err := m.GetStakeManager(pool)
	if err != nil {
		return nil, err
	}
	return sm.EraRates, nil
}

func (m *Manager) GetUnstakeAccount(pool Address, id uuid.UUID) (*UnstakeAccount, error) {
	var ua *UnstakeAccount
	err := m.store.View(func(tx *store.Tx) error {
		var err error
		ua, err = loadUnstakeAccount(tx, pool, id)
		return err
	})
	return ua, err
}

// ListUnstakeAccounts returns the open unstake accounts of pool, only those of user unless user is
// the zero address.
func (m *Manager) ListUnstakeAccounts(pool, user Address) ([]*UnstakeAccount, error) {
	var accounts []*UnstakeAccount
	err := m.store.View(func(tx *store.Tx) error {
		if _, err := loadStakeManager(tx, pool); err != nil {
			return err
		}
		return store.IterateJSON(tx, store.Key(keyUnstakeAccount, pool.String())+"/", func(_ string, ua *UnstakeAccount) error {
			if user.IsZero() || ua.User == user {
				accounts = append(accounts, ua)
			}
			return nil
		})
	})
	return accounts, err
}

// ExternalRequests returns the pool's unbonds still held by the staking service.
func (m *Manager) ExternalRequests(pool Address) ([]*ExternalUnstakeRequest, error) {
	var requests []*ExternalUnstakeRequest
	err := m.store.View(func(tx *store.Tx) error {
		if _, err := loadStakeManager(tx, pool); err != nil {
			return err
		}
		return store.IterateJSON(tx, store.Key(keyExternalRequest, pool.String())+"/", func(_ string, req *ExternalUnstakeRequest) error {
			requests = append(requests, req)
			return nil
		})
	})
	return requests, err
}

func (m *Manager) Balance(asset, owner Address) (uint64, error) {
	var bal uint64
	err := m.store.View(func(tx *store.Tx) error {
		var err error
		bal, err = balanceOf(tx, asset, owner)
		return err
	})
	return bal, err
}

func (m *Manager) Supply(asset Address) (uint64, error) {
	var supply uint64
	err := m.store.View(func(tx *store.Tx) error {
		var err error
		supply, err = supplyOf(tx, asset)
		return err
	})
	return supply, err
}
