package token

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/runtime"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// Actor is an owner-mintable fungible token ledger with transfer and allowance semantics.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Mint,
		3:                         a.Transfer,
		4:                         a.TransferFrom,
		5:                         a.Approve,
		6:                         a.BalanceOf,
		7:                         a.Allowance,
		8:                         a.TotalSupply,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.TokenActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ runtime.VMActor = Actor{}

type ConstructorParams struct {
	Owner         addr.Address
	InitialSupply abi.TokenAmount
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	builtin.RequireParam(rt, !params.InitialSupply.LessThan(big.Zero()), "negative initial supply %v", params.InitialSupply)

	owner := resolveOrAbort(rt, params.Owner)
	st, err := ConstructState(adt.AsStore(rt), owner)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")

	err = st.Mint(adt.AsStore(rt), owner, params.InitialSupply)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to mint initial supply")

	rt.StateCreate(st)
	return nil
}

type MintParams struct {
	To     addr.Address
	Amount abi.TokenAmount
}

func (a Actor) Mint(rt runtime.Runtime, params *MintParams) *abi.EmptyValue {
	var st State
	rt.StateReadonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	builtin.RequireParam(rt, !params.Amount.LessThan(big.Zero()), "negative mint amount %v", params.Amount)

	to := resolveOrAbort(rt, params.To)
	rt.StateTransaction(&st, func() {
		err := st.Mint(adt.AsStore(rt), to, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to mint %v to %v", params.Amount, to)
	})
	rt.Log(builtin.GetActorLogLevel(a, rtt.DEBUG), "minted %v to %v", params.Amount, to)
	return nil
}

type TransferParams struct {
	To     addr.Address
	Amount abi.TokenAmount
}

func (a Actor) Transfer(rt runtime.Runtime, params *TransferParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireParam(rt, !params.Amount.LessThan(big.Zero()), "negative transfer amount %v", params.Amount)

	to := resolveOrAbort(rt, params.To)
	var st State
	rt.StateTransaction(&st, func() {
		err := st.Transfer(adt.AsStore(rt), rt.Caller(), to, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to transfer %v from %v to %v", params.Amount, rt.Caller(), to)
	})
	rt.Log(builtin.GetActorLogLevel(a, rtt.DEBUG), "transferred %v from %v to %v", params.Amount, rt.Caller(), to)
	return nil
}

type TransferFromParams struct {
	From   addr.Address
	To     addr.Address
	Amount abi.TokenAmount
}

func (a Actor) TransferFrom(rt runtime.Runtime, params *TransferFromParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireParam(rt, !params.Amount.LessThan(big.Zero()), "negative transfer amount %v", params.Amount)

	from := resolveOrAbort(rt, params.From)
	to := resolveOrAbort(rt, params.To)
	var st State
	rt.StateTransaction(&st, func() {
		err := st.TransferFrom(adt.AsStore(rt), rt.Caller(), from, to, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to transfer %v from %v to %v", params.Amount, from, to)
	})
	rt.Log(builtin.GetActorLogLevel(a, rtt.DEBUG), "%v transferred %v from %v to %v", rt.Caller(), params.Amount, from, to)
	return nil
}

type ApproveParams struct {
	Spender addr.Address
	Amount  abi.TokenAmount
}

func (a Actor) Approve(rt runtime.Runtime, params *ApproveParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireParam(rt, !params.Amount.LessThan(big.Zero()), "negative allowance %v", params.Amount)

	spender := resolveOrAbort(rt, params.Spender)
	var st State
	rt.StateTransaction(&st, func() {
		err := st.Approve(adt.AsStore(rt), rt.Caller(), spender, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to approve %v for %v", params.Amount, spender)
	})
	return nil
}

func (a Actor) BalanceOf(rt runtime.Runtime, account *addr.Address) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	resolved, ok := rt.ResolveAddress(*account)
	if !ok {
		zero := big.Zero()
		return &zero
	}
	var st State
	rt.StateReadonly(&st)
	balance, err := st.BalanceOf(adt.AsStore(rt), resolved)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to get balance of %v", resolved)
	return &balance
}

type AllowanceParams struct {
	Owner   addr.Address
	Spender addr.Address
}

func (a Actor) Allowance(rt runtime.Runtime, params *AllowanceParams) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	owner, ownerOk := rt.ResolveAddress(params.Owner)
	spender, spenderOk := rt.ResolveAddress(params.Spender)
	if !ownerOk || !spenderOk {
		zero := big.Zero()
		return &zero
	}
	var st State
	rt.StateReadonly(&st)
	allowance, err := st.Allowance(adt.AsStore(rt), owner, spender)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to get allowance of %v for %v", owner, spender)
	return &allowance
}

func (a Actor) TotalSupply(rt runtime.Runtime, _ *abi.EmptyValue) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.StateReadonly(&st)
	return &st.Supply
}

func resolveOrAbort(rt runtime.Runtime, raw addr.Address) addr.Address {
	resolved, ok := rt.ResolveAddress(raw)
	if !ok {
		rt.Abortf(exitcode.ErrIllegalArgument, "unable to resolve address %v", raw)
	}
	return resolved
}
