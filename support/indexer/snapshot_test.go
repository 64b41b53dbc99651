package indexer_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/indexer"
	"github.com/tokenvest/vesting-actors/support/ipld"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
)

const day = vesting.VestingDuration / 30

// Builds an engine state with two grants for one beneficiary and one for another,
// with part of the first grant already collected.
func populatedState(t *testing.T, store adt.Store) *vesting.State {
	owner := tutil.NewIDAddr(t, 100)
	alice := tutil.NewIDAddr(t, 201)
	bob := tutil.NewIDAddr(t, 200)

	st, err := vesting.ConstructState(store, owner)
	require.NoError(t, err)

	_, err = st.AddGrant(store, alice, big.NewInt(3000), 0)
	require.NoError(t, err)
	_, err = st.AddGrant(store, alice, big.NewInt(900), 3*day)
	require.NoError(t, err)
	_, err = st.AddGrant(store, bob, big.NewInt(600), 0)
	require.NoError(t, err)

	_, err = st.CollectOne(store, alice, 0, 5*day)
	require.NoError(t, err)
	return st
}

func TestSnapshot(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	st := populatedState(t, store)

	now := abi.ChainEpoch(12 * day)
	rows, err := indexer.Snapshot(store, st, now)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	bob := tutil.NewIDAddr(t, 200).String()
	alice := tutil.NewIDAddr(t, 201).String()

	assert.Equal(t, bob, rows[0].Beneficiary)
	assert.Equal(t, uint64(0), rows[0].Index)
	assert.Equal(t, "600", rows[0].TotalAmount.String())
	assert.Equal(t, "240", rows[0].UnlockedAmount.String())
	assert.True(t, rows[0].CollectedAmount.IsZero())

	assert.Equal(t, alice, rows[1].Beneficiary)
	assert.Equal(t, uint64(0), rows[1].Index)
	assert.Equal(t, "1200", rows[1].UnlockedAmount.String())
	assert.Equal(t, "500", rows[1].CollectedAmount.String())

	assert.Equal(t, alice, rows[2].Beneficiary)
	assert.Equal(t, uint64(1), rows[2].Index)
	assert.Equal(t, abi.ChainEpoch(3*day), rows[2].StartEpoch)
	assert.Equal(t, "270", rows[2].UnlockedAmount.String())

	for _, r := range rows {
		assert.Equal(t, now, r.IndexedEpoch)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	st, err := vesting.ConstructState(store, tutil.NewIDAddr(t, 100))
	require.NoError(t, err)

	rows, err := indexer.Snapshot(store, st, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
