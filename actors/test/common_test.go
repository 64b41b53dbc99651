package test

import (
	"context"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
	"github.com/tokenvest/vesting-actors/support/vm"
)

const genesisEpoch = abi.ChainEpoch(100)

// A VM with an operator-owned token ledger and an initialized vesting engine.
type vestingEnv struct {
	t       *testing.T
	v       *vm.VM
	owner   addr.Address
	token   addr.Address
	vesting addr.Address
}

func newVestingEnv(t *testing.T, supply int64) *vestingEnv {
	v := vm.NewVMWithSingletonsT(context.Background(), t)
	v.SetEpoch(genesisEpoch)
	owner := vm.CreateAccounts(t, v, big.Zero(), tutil.NewSECP256K1Addr(t, "operator"))[0]

	tokenAddr, err := v.DeployToken(owner, abi.NewTokenAmount(supply))
	require.NoError(t, err)
	vestingAddr, err := v.DeployVesting(owner)
	require.NoError(t, err)
	vm.ApplyOk(t, v, owner, vestingAddr, big.Zero(), builtin.MethodsVesting.Initialize, &tokenAddr)

	return &vestingEnv{t: t, v: v, owner: owner, token: tokenAddr, vesting: vestingAddr}
}

func (e *vestingEnv) accounts(names ...string) []addr.Address {
	keys := make([]addr.Address, len(names))
	for i, name := range names {
		keys[i] = tutil.NewSECP256K1Addr(e.t, name)
	}
	return vm.CreateAccounts(e.t, e.v, big.Zero(), keys...)
}

func (e *vestingEnv) advanceDays(days int64) {
	e.v.SetEpoch(e.v.GetEpoch() + abi.ChainEpoch(days*builtin.EpochsInDay))
}

func (e *vestingEnv) approve(amount int64) {
	vm.ApplyOk(e.t, e.v, e.owner, e.token, big.Zero(), builtin.MethodsToken.Approve,
		&token.ApproveParams{Spender: e.vesting, Amount: abi.NewTokenAmount(amount)})
}

func (e *vestingEnv) createGrant(beneficiary addr.Address, amount int64) uint64 {
	ret := vm.ApplyOk(e.t, e.v, e.owner, e.vesting, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: beneficiary, Amount: abi.NewTokenAmount(amount)})
	return ret.(*vesting.CreateGrantReturn).Index
}

func (e *vestingEnv) claim(beneficiary addr.Address) abi.TokenAmount {
	ret := vm.ApplyOk(e.t, e.v, beneficiary, e.vesting, big.Zero(), builtin.MethodsVesting.Claim, nil)
	return ret.(*vesting.ClaimReturn).Amount
}

func (e *vestingEnv) unlocked(beneficiary addr.Address, index uint64) abi.TokenAmount {
	var amount abi.TokenAmount
	vm.QueryOk(e.t, e.v, e.vesting, builtin.MethodsVesting.CurrentUnlockedAmount,
		&vesting.GrantParams{Beneficiary: beneficiary, Index: index}, &amount)
	return amount
}

func (e *vestingEnv) collected(beneficiary addr.Address, index uint64) abi.TokenAmount {
	var amount abi.TokenAmount
	vm.QueryOk(e.t, e.v, e.vesting, builtin.MethodsVesting.CollectedAmount,
		&vesting.GrantParams{Beneficiary: beneficiary, Index: index}, &amount)
	return amount
}

func (e *vestingEnv) grantCount(beneficiary addr.Address) uint64 {
	var ret vesting.GrantCountReturn
	vm.QueryOk(e.t, e.v, e.vesting, builtin.MethodsVesting.GrantCount, &beneficiary, &ret)
	return ret.Count
}

func (e *vestingEnv) balanceOf(a addr.Address) abi.TokenAmount {
	var amount abi.TokenAmount
	vm.QueryOk(e.t, e.v, e.token, builtin.MethodsToken.BalanceOf, &a, &amount)
	return amount
}

func (e *vestingEnv) assertBalance(a addr.Address, expected int64) {
	assert.Equal(e.t, abi.NewTokenAmount(expected).String(), e.balanceOf(a).String(), "balance of %v", a)
}

// Checks both actors' invariants and that the engine holds enough tokens to honour every grant.
func (e *vestingEnv) checkState() {
	vm.AssertStateInvariants(e.t, e.v)

	var vst vesting.State
	vm.GetStateT(e.t, e.v, e.vesting, &vst)
	summary, msgs, err := vesting.CheckStateInvariants(&vst, e.v.Store())
	require.NoError(e.t, err)
	assert.True(e.t, msgs.IsEmpty(), msgs.Messages())

	var tst token.State
	vm.GetStateT(e.t, e.v, e.token, &tst)
	tokenSummary, msgs, err := token.CheckStateInvariants(&tst, e.v.Store())
	require.NoError(e.t, err)
	assert.True(e.t, msgs.IsEmpty(), msgs.Messages())

	custody, ok := tokenSummary.Balances[e.vesting]
	if !ok {
		custody = big.Zero()
	}
	outstanding := big.Sub(summary.TotalGranted, summary.TotalCollected)
	assert.True(e.t, custody.GreaterThanEqual(outstanding), "custody %v below outstanding %v", custody, outstanding)
}
