package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name   string `json:"name"`
	Amount uint64 `json:"amount"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Put("r/1", record{Name: "one", Amount: 10})
	}))

	var got record
	require.NoError(t, s.View(func(tx *Tx) error {
		return tx.Get("r/1", &got)
	}))
	assert.Equal(t, record{Name: "one", Amount: 10}, got)

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Delete("r/1")
	}))
	err := s.View(func(tx *Tx) error {
		return tx.Get("r/1", &got)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.Update(func(tx *Tx) error {
		if err := tx.Put("r/1", record{Name: "one"}); err != nil {
			return err
		}
		if err := tx.PutUint64("counter", 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(func(tx *Tx) error {
		has, err := tx.Has("r/1")
		require.NoError(t, err)
		assert.False(t, has)
		val, err := tx.GetUint64("counter")
		require.NoError(t, err)
		assert.Zero(t, val)
		return nil
	}))
}

func TestUint64ZeroDeletes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.PutUint64("c", 42)
	}))
	require.NoError(t, s.Update(func(tx *Tx) error {
		val, err := tx.GetUint64("c")
		require.NoError(t, err)
		assert.Equal(t, uint64(42), val)
		return tx.PutUint64("c", 0)
	}))
	require.NoError(t, s.View(func(tx *Tx) error {
		has, err := tx.Has("c")
		require.NoError(t, err)
		assert.False(t, has)
		return nil
	}))
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *Tx) error {
		for _, k := range []string{"a/2", "a/1", "b/1", "a/3"} {
			if err := tx.Put(k, record{Name: k}); err != nil {
				return err
			}
		}
		return nil
	}))

	var names []string
	require.NoError(t, s.View(func(tx *Tx) error {
		return IterateJSON(tx, "a/", func(key string, r *record) error {
			names = append(names, r.Name)
			return nil
		})
	}))
	assert.Equal(t, []string{"a/1", "a/2", "a/3"}, names)
	assert.Equal(t, "x/y/z", Key("x", "y", "z"))
}
