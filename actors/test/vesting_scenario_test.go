package test

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/support/vm"
)

func TestLinearGrantLifecycle(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]

	e.approve(100)
	assert.Equal(t, uint64(0), e.createGrant(alice, 100))
	e.assertBalance(e.owner, 900)
	e.assertBalance(e.vesting, 100)
	assert.True(t, e.unlocked(alice, 0).Equals(big.Zero()))
	e.checkState()

	e.advanceDays(15)
	assert.Equal(t, "50", e.unlocked(alice, 0).String())
	assert.Equal(t, "50", e.claim(alice).String())
	assert.Equal(t, "50", e.collected(alice, 0).String())
	e.assertBalance(alice, 50)
	e.checkState()

	e.advanceDays(16)
	assert.Equal(t, "100", e.unlocked(alice, 0).String())
	assert.Equal(t, "50", e.claim(alice).String())
	assert.Equal(t, "100", e.collected(alice, 0).String())
	e.assertBalance(alice, 100)
	e.assertBalance(e.vesting, 0)
	e.checkState()

	e.advanceDays(10)
	assert.True(t, e.claim(alice).Equals(big.Zero()), "settled grants release nothing further")
	e.checkState()
}

func TestSmallGrantUnlocksDaily(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]

	e.approve(30)
	e.createGrant(alice, 30)

	e.advanceDays(3)
	assert.Equal(t, "3", e.claim(alice).String())
	assert.Equal(t, "3", e.collected(alice, 0).String())

	e.advanceDays(8)
	assert.Equal(t, "11", e.unlocked(alice, 0).String())
	e.checkState()
}

func TestClaimIsIdempotentWithinAnEpoch(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]
	e.approve(100)
	e.createGrant(alice, 100)

	e.advanceDays(7)
	first := e.claim(alice)
	assert.Equal(t, "23", first.String())
	assert.True(t, e.claim(alice).Equals(big.Zero()))
	e.assertBalance(alice, 23)
	e.checkState()
}

func TestNonOwnerCannotCreateGrant(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	accounts := e.accounts("alice", "mallory")
	alice, mallory := accounts[0], accounts[1]
	e.approve(100)

	vm.ApplyCode(t, e.v, mallory, e.vesting, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: alice, Amount: abi.NewTokenAmount(100)}, exitcode.ErrForbidden)

	assert.Equal(t, uint64(0), e.grantCount(alice))
	e.assertBalance(e.owner, 1_000)
	e.checkState()
}

func TestInsufficientAllowance(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]
	e.approve(99)

	vm.ApplyCode(t, e.v, e.owner, e.vesting, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: alice, Amount: abi.NewTokenAmount(100)}, vesting.ErrInsufficientAllowance)

	vm.ExpectInvocation{
		To:       e.vesting,
		Method:   builtin.MethodsVesting.CreateGrant,
		Exitcode: vesting.ErrInsufficientAllowance,
		SubInvocations: []vm.ExpectInvocation{
			{To: e.token, Method: builtin.MethodsToken.Allowance, Exitcode: exitcode.Ok},
		},
	}.Matches(t, e.v.LastInvocation())

	assert.Equal(t, uint64(0), e.grantCount(alice))
	e.assertBalance(e.owner, 1_000)
	e.assertBalance(e.vesting, 0)
	e.checkState()
}

func TestMultipleGrantsAndBeneficiaries(t *testing.T) {
	e := newVestingEnv(t, 10_000)
	accounts := e.accounts("alice", "bob")
	alice, bob := accounts[0], accounts[1]

	e.approve(3_000)
	assert.Equal(t, uint64(0), e.createGrant(alice, 600))
	assert.Equal(t, uint64(0), e.createGrant(bob, 1_200))
	e.advanceDays(10)
	assert.Equal(t, uint64(1), e.createGrant(alice, 900))
	e.checkState()

	e.advanceDays(10)
	// 600 * 20/30 + 900 * 10/30
	assert.Equal(t, "700", e.claim(alice).String())
	e.assertBalance(alice, 700)
	e.assertBalance(bob, 0)
	e.checkState()

	e.advanceDays(30)
	assert.Equal(t, "800", e.claim(alice).String())
	assert.Equal(t, "1200", e.claim(bob).String())
	e.assertBalance(e.vesting, 0)
	e.assertBalance(e.owner, 10_000-2_700)
	e.checkState()

	var summary vesting.SummaryReturn
	vm.QueryOk(t, e.v, e.vesting, builtin.MethodsVesting.Summary, nil, &summary)
	assert.Equal(t, uint64(3), summary.GrantCount)
	assert.Equal(t, "2700", summary.TotalGranted.String())
	assert.Equal(t, "2700", summary.TotalCollected.String())
}

func TestClaimSingleGrant(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]
	e.approve(600)
	e.createGrant(alice, 300)
	e.createGrant(alice, 300)

	e.advanceDays(10)
	ret := vm.ApplyOk(t, e.v, alice, e.vesting, big.Zero(), builtin.MethodsVesting.ClaimGrant, &vesting.ClaimGrantParams{Index: 1})
	assert.Equal(t, "100", ret.(*vesting.ClaimReturn).Amount.String())
	assert.True(t, e.collected(alice, 0).Equals(big.Zero()))

	vm.ApplyCode(t, e.v, alice, e.vesting, big.Zero(), builtin.MethodsVesting.ClaimGrant, &vesting.ClaimGrantParams{Index: 2}, vesting.ErrGrantNotFound)
	e.checkState()
}

func TestEngineLifecycleErrors(t *testing.T) {
	e := newVestingEnv(t, 1_000)
	alice := e.accounts("alice")[0]

	vm.ApplyCode(t, e.v, e.owner, e.vesting, big.Zero(), builtin.MethodsVesting.Initialize, &e.token, vesting.ErrAlreadyInitialized)

	unbound, err := e.v.DeployVesting(e.owner)
	assert.NoError(t, err)
	vm.ApplyCode(t, e.v, e.owner, unbound, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: alice, Amount: abi.NewTokenAmount(1)}, vesting.ErrNotInitialized)
	vm.ApplyCode(t, e.v, alice, unbound, big.Zero(), builtin.MethodsVesting.Claim, nil, vesting.ErrNotInitialized)

	vm.ApplyCode(t, e.v, e.owner, e.vesting, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: alice, Amount: big.Zero()}, exitcode.ErrIllegalArgument)
}
