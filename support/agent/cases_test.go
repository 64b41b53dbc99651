package agent_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/agent"
	"github.com/tokenvest/vesting-actors/support/ipld"
	"github.com/tokenvest/vesting-actors/support/vm"
)

func newSim(t *testing.T, store adt.Store, seed int64) *agent.Sim {
	sim, err := agent.NewSim(context.Background(), store, agent.SimConfig{
		Seed:             seed,
		BeneficiaryCount: 8,
		Supply:           abi.NewTokenAmount(1_000_000),
		TickEpochs:       builtin.EpochsInDay / 4,
		GrantRate:        0.5,
		ClaimRate:        0.2,
		MaxGrant:         20_000,
	})
	require.NoError(t, err)
	return sim
}

func TestRandomGrantsAndClaimsStaySolvent(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t, ipld.NewADTStore(ctx), 42)

	// Twenty days of grants and claims.
	for i := 0; i < 80; i++ {
		require.NoError(t, sim.Tick())
		if i%10 == 0 {
			vm.AssertStateInvariants(t, sim.GetVM())
		}
	}
	assert.Greater(t, sim.Calls()[builtin.MethodsVesting.CreateGrant], 0)
	assert.Greater(t, sim.Calls()[builtin.MethodsVesting.Claim], 0)

	// Once every grant has fully vested, a final claim drains the engine.
	sim.GetVM().SetEpoch(sim.GetVM().GetEpoch() + vesting.VestingDuration)
	require.NoError(t, sim.ClaimAll())
	vm.AssertStateInvariants(t, sim.GetVM())

	totalClaimed := big.Zero()
	for _, b := range sim.Beneficiaries {
		assert.Equal(t, b.Granted().String(), b.Claimed.String(), "beneficiary %v", b.Address)
		balance, err := sim.BalanceOf(b.Address)
		require.NoError(t, err)
		assert.Equal(t, b.Claimed.String(), balance.String(), "beneficiary %v", b.Address)
		totalClaimed = big.Add(totalClaimed, b.Claimed)
	}
	assert.Equal(t, sim.Grantor.Granted.String(), totalClaimed.String())

	custody, err := sim.BalanceOf(sim.Vesting)
	require.NoError(t, err)
	assert.True(t, custody.IsZero(), "custody %v", custody)

	ownerBalance, err := sim.BalanceOf(sim.Owner)
	require.NoError(t, err)
	assert.Equal(t, big.Sub(abi.NewTokenAmount(1_000_000), totalClaimed).String(), ownerBalance.String())
}

func TestSimIsDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func() []string {
		sim := newSim(t, ipld.NewADTStore(ctx), 7)
		for i := 0; i < 40; i++ {
			require.NoError(t, sim.Tick())
		}
		var claimed []string
		for _, b := range sim.Beneficiaries {
			claimed = append(claimed, b.Claimed.String())
		}
		return claimed
	}
	assert.Equal(t, run(), run())
}

func TestSimStoreTraffic(t *testing.T) {
	ctx := context.Background()
	metrics := ipld.NewMetricsBlockStore(ipld.NewBlockStoreInMemory())
	sim := newSim(t, adt.WrapBlockStore(ctx, metrics), 42)

	before := metrics.Snapshot()
	for i := 0; i < 20; i++ {
		require.NoError(t, sim.Tick())
	}
	after := metrics.Snapshot()
	assert.Greater(t, after.Writes, before.Writes)
	assert.Greater(t, after.Reads, before.Reads)
	t.Logf("store traffic over 20 ticks: %v", after)
}

func TestRateIterator(t *testing.T) {
	ri := agent.NewRateIterator(2.5, 42)
	events := 0
	const ticks = 10_000
	for i := 0; i < ticks; i++ {
		require.NoError(t, ri.Tick(func() error {
			events++
			return nil
		}))
	}
	mean := float64(events) / ticks
	assert.InDelta(t, 2.5, mean, 0.1)

	idle := agent.NewRateIterator(0, 1)
	require.NoError(t, idle.Tick(func() error {
		t.Fatal("zero rate iterator produced an event")
		return nil
	}))
}
