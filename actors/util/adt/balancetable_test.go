package adt_test

import (
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/mock"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
)

func TestBalanceTable(t *testing.T) {
	t.Run("Add adds or creates", func(t *testing.T) {
		addr := tutil.NewIDAddr(t, 100)
		rt := mock.NewBuilder(address.Undef).Build(t)
		store := adt.AsStore(rt)
		emptyMap, err := adt.StoreEmptyMap(store)
		require.NoError(t, err)

		bt, err := adt.AsBalanceTable(store, emptyMap)
		require.NoError(t, err)

		amount, err := bt.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), amount)

		require.NoError(t, bt.Add(addr, abi.NewTokenAmount(10)))
		amount, err = bt.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(10), amount)

		require.NoError(t, bt.Add(addr, abi.NewTokenAmount(20)))
		amount, err = bt.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(30), amount)

		// Negative result is rejected.
		require.Error(t, bt.Add(addr, abi.NewTokenAmount(-31)))
	})

	t.Run("Add of zero to an absent balance stores nothing", func(t *testing.T) {
		addr := tutil.NewIDAddr(t, 100)
		rt := mock.NewBuilder(address.Undef).Build(t)
		store := adt.AsStore(rt)
		emptyMap, err := adt.StoreEmptyMap(store)
		require.NoError(t, err)

		bt, err := adt.AsBalanceTable(store, emptyMap)
		require.NoError(t, err)
		require.NoError(t, bt.Add(addr, big.Zero()))

		keys, err := (*adt.Map)(bt).CollectKeys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("MustSubtract fails without change when insufficient", func(t *testing.T) {
		addr := tutil.NewIDAddr(t, 100)
		rt := mock.NewBuilder(address.Undef).Build(t)
		store := adt.AsStore(rt)
		emptyMap, err := adt.StoreEmptyMap(store)
		require.NoError(t, err)

		bt, err := adt.AsBalanceTable(store, emptyMap)
		require.NoError(t, err)
		require.NoError(t, bt.Add(addr, abi.NewTokenAmount(80)))

		require.Error(t, bt.MustSubtract(addr, abi.NewTokenAmount(81)))
		amount, err := bt.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(80), amount)

		require.NoError(t, bt.MustSubtract(addr, abi.NewTokenAmount(80)))
		amount, err = bt.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), amount)

		// Zeroed balances are removed from the table.
		keys, err := (*adt.Map)(bt).CollectKeys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Total sums all balances", func(t *testing.T) {
		addr1 := tutil.NewIDAddr(t, 100)
		addr2 := tutil.NewIDAddr(t, 101)
		rt := mock.NewBuilder(address.Undef).Build(t)
		store := adt.AsStore(rt)
		emptyMap, err := adt.StoreEmptyMap(store)
		require.NoError(t, err)

		bt, err := adt.AsBalanceTable(store, emptyMap)
		require.NoError(t, err)

		total, err := bt.Total()
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), total)

		require.NoError(t, bt.Add(addr1, abi.NewTokenAmount(10)))
		require.NoError(t, bt.Add(addr2, abi.NewTokenAmount(20)))

		total, err = bt.Total()
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(30), total)

		seen := map[address.Address]abi.TokenAmount{}
		require.NoError(t, bt.ForEach(func(key address.Address, balance abi.TokenAmount) error {
			seen[key] = balance
			return nil
		}))
		assert.Equal(t, map[address.Address]abi.TokenAmount{
			addr1: abi.NewTokenAmount(10),
			addr2: abi.NewTokenAmount(20),
		}, seen)
	})
}
