package token_test

import (
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/mock"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, token.Actor{})
}

func TestConstruction(t *testing.T) {
	receiver := tutil.NewIDAddr(t, 100)
	owner := tutil.NewIDAddr(t, 101)
	builder := mock.NewBuilder(receiver).WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)

	t.Run("initial supply is assigned to the owner", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(1_000))

		var st token.State
		rt.GetState(&st)
		assert.Equal(t, owner, st.Owner)
		assert.Equal(t, abi.NewTokenAmount(1_000), st.Supply)
		assert.Equal(t, abi.NewTokenAmount(1_000), actor.balanceOf(rt, owner))
		assert.Equal(t, abi.NewTokenAmount(1_000), actor.totalSupply(rt))
		actor.checkState(rt)
	})

	t.Run("fails with negative supply", func(t *testing.T) {
		rt := builder.Build(t)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(token.Actor{}.Constructor, &token.ConstructorParams{Owner: owner, InitialSupply: abi.NewTokenAmount(-1)})
		})
		rt.Verify()
	})

	t.Run("fails when not called by the system", func(t *testing.T) {
		rt := builder.Build(t)
		rt.SetCaller(owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(token.Actor{}.Constructor, &token.ConstructorParams{Owner: owner, InitialSupply: big.Zero()})
		})
		rt.Verify()
	})
}

func TestMint(t *testing.T) {
	receiver := tutil.NewIDAddr(t, 100)
	owner := tutil.NewIDAddr(t, 101)
	alice := tutil.NewIDAddr(t, 102)
	builder := mock.NewBuilder(receiver).WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)

	t.Run("owner mints to any account", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, big.Zero())

		actor.mint(rt, alice, abi.NewTokenAmount(500))
		assert.Equal(t, abi.NewTokenAmount(500), actor.balanceOf(rt, alice))
		assert.Equal(t, abi.NewTokenAmount(500), actor.totalSupply(rt))
		actor.checkState(rt)
	})

	t.Run("minting zero stores no balance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, big.Zero())

		actor.mint(rt, alice, big.Zero())
		assert.Equal(t, "0", actor.totalSupply(rt).String())
		actor.checkState(rt)
	})

	t.Run("non-owner cannot mint", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, big.Zero())

		rt.SetCaller(alice, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(owner)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(actor.Mint, &token.MintParams{To: alice, Amount: abi.NewTokenAmount(1)})
		})
		rt.Verify()
		assert.Equal(t, big.Zero(), actor.totalSupply(rt))
		actor.checkState(rt)
	})
}

func TestTransfer(t *testing.T) {
	receiver := tutil.NewIDAddr(t, 100)
	owner := tutil.NewIDAddr(t, 101)
	alice := tutil.NewIDAddr(t, 102)
	builder := mock.NewBuilder(receiver).WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)

	t.Run("moves balance between accounts", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		actor.transfer(rt, owner, alice, abi.NewTokenAmount(40))
		assert.Equal(t, abi.NewTokenAmount(60), actor.balanceOf(rt, owner))
		assert.Equal(t, abi.NewTokenAmount(40), actor.balanceOf(rt, alice))
		actor.checkState(rt)
	})

	t.Run("zero amount to a new account stores no balance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		actor.transfer(rt, owner, alice, big.Zero())
		assert.Equal(t, "0", actor.balanceOf(rt, alice).String())
		assert.Equal(t, "100", actor.balanceOf(rt, owner).String())
		actor.checkState(rt)
	})

	t.Run("fails when balance is short", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		rt.SetCaller(owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(actor.Transfer, &token.TransferParams{To: alice, Amount: abi.NewTokenAmount(101)})
		})
		rt.Verify()
		assert.Equal(t, abi.NewTokenAmount(100), actor.balanceOf(rt, owner))
		actor.checkState(rt)
	})

	t.Run("fails with negative amount", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		rt.SetCaller(owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(actor.Transfer, &token.TransferParams{To: alice, Amount: abi.NewTokenAmount(-1)})
		})
		rt.Verify()
	})
}

func TestAllowance(t *testing.T) {
	receiver := tutil.NewIDAddr(t, 100)
	owner := tutil.NewIDAddr(t, 101)
	spender := tutil.NewIDAddr(t, 102)
	recipient := tutil.NewIDAddr(t, 103)
	builder := mock.NewBuilder(receiver).WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)

	t.Run("transfer from consumes allowance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		actor.approve(rt, owner, spender, abi.NewTokenAmount(70))
		assert.Equal(t, abi.NewTokenAmount(70), actor.allowance(rt, owner, spender))

		actor.transferFrom(rt, spender, owner, recipient, abi.NewTokenAmount(30))
		assert.Equal(t, abi.NewTokenAmount(40), actor.allowance(rt, owner, spender))
		assert.Equal(t, abi.NewTokenAmount(70), actor.balanceOf(rt, owner))
		assert.Equal(t, abi.NewTokenAmount(30), actor.balanceOf(rt, recipient))
		assert.Equal(t, big.Zero(), actor.balanceOf(rt, spender))

		// Spending the rest removes the allowance entry.
		actor.transferFrom(rt, spender, owner, recipient, abi.NewTokenAmount(40))
		assert.Equal(t, big.Zero(), actor.allowance(rt, owner, spender))
		actor.checkState(rt)
	})

	t.Run("approve overwrites the previous allowance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))

		actor.approve(rt, owner, spender, abi.NewTokenAmount(70))
		actor.approve(rt, owner, spender, abi.NewTokenAmount(5))
		assert.Equal(t, abi.NewTokenAmount(5), actor.allowance(rt, owner, spender))
		actor.approve(rt, owner, spender, big.Zero())
		assert.Equal(t, big.Zero(), actor.allowance(rt, owner, spender))
		actor.checkState(rt)
	})

	t.Run("transfer from fails beyond allowance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))
		actor.approve(rt, owner, spender, abi.NewTokenAmount(10))

		rt.SetCaller(spender, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbortContainsMessage(exitcode.ErrInsufficientFunds, "insufficient allowance", func() {
			rt.Call(actor.TransferFrom, &token.TransferFromParams{From: owner, To: recipient, Amount: abi.NewTokenAmount(11)})
		})
		rt.Verify()
		assert.Equal(t, abi.NewTokenAmount(10), actor.allowance(rt, owner, spender))
		assert.Equal(t, abi.NewTokenAmount(100), actor.balanceOf(rt, owner))
	})

	t.Run("transfer from fails beyond balance", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, owner)
		actor.constructAndVerify(rt, abi.NewTokenAmount(100))
		actor.approve(rt, owner, spender, abi.NewTokenAmount(1_000))

		rt.SetCaller(spender, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(actor.TransferFrom, &token.TransferFromParams{From: owner, To: recipient, Amount: abi.NewTokenAmount(101)})
		})
		rt.Verify()
		assert.Equal(t, abi.NewTokenAmount(1_000), actor.allowance(rt, owner, spender))
	})
}

type actorHarness struct {
	token.Actor
	t     testing.TB
	owner addr.Address
}

func newHarness(t testing.TB, owner addr.Address) *actorHarness {
	return &actorHarness{token.Actor{}, t, owner}
}

func (h *actorHarness) constructAndVerify(rt *mock.Runtime, supply abi.TokenAmount) {
	rt.SetCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)
	rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
	ret := rt.Call(h.Constructor, &token.ConstructorParams{Owner: h.owner, InitialSupply: supply})
	assert.Nil(h.t, ret)
	rt.Verify()
}

func (h *actorHarness) mint(rt *mock.Runtime, to addr.Address, amount abi.TokenAmount) {
	rt.SetCaller(h.owner, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.owner)
	rt.Call(h.Mint, &token.MintParams{To: to, Amount: amount})
	rt.Verify()
}

func (h *actorHarness) transfer(rt *mock.Runtime, from, to addr.Address, amount abi.TokenAmount) {
	rt.SetCaller(from, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAny()
	rt.Call(h.Transfer, &token.TransferParams{To: to, Amount: amount})
	rt.Verify()
}

func (h *actorHarness) approve(rt *mock.Runtime, owner, spender addr.Address, amount abi.TokenAmount) {
	rt.SetCaller(owner, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAny()
	rt.Call(h.Approve, &token.ApproveParams{Spender: spender, Amount: amount})
	rt.Verify()
}

func (h *actorHarness) transferFrom(rt *mock.Runtime, spender, from, to addr.Address, amount abi.TokenAmount) {
	rt.SetCaller(spender, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAny()
	rt.Call(h.TransferFrom, &token.TransferFromParams{From: from, To: to, Amount: amount})
	rt.Verify()
}

func (h *actorHarness) balanceOf(rt *mock.Runtime, a addr.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.BalanceOf, &a).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *actorHarness) allowance(rt *mock.Runtime, owner, spender addr.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.Allowance, &token.AllowanceParams{Owner: owner, Spender: spender}).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *actorHarness) totalSupply(rt *mock.Runtime) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.TotalSupply, nil).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *actorHarness) checkState(rt *mock.Runtime) {
	var st token.State
	rt.GetState(&st)
	_, msgs, err := token.CheckStateInvariants(&st, adt.AsStore(rt))
	require.NoError(h.t, err)
	assert.True(h.t, msgs.IsEmpty(), msgs.Messages())
}
