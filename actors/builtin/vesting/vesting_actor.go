package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/runtime"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// Actor holds tokens in custody on behalf of beneficiaries and releases them linearly over VestingDuration.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Initialize,
		3:                         a.CreateGrant,
		4:                         a.Claim,
		5:                         a.ClaimGrant,
		6:                         a.CurrentUnlockedAmount,
		7:                         a.CollectedAmount,
		8:                         a.GetGrant,
		9:                         a.GrantCount,
		10:                        a.Summary,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.VestingActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ runtime.VMActor = Actor{}

func (a Actor) Constructor(rt runtime.Runtime, owner *addr.Address) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	resolved, ok := rt.ResolveAddress(*owner)
	if !ok {
		rt.Abortf(exitcode.ErrIllegalArgument, "unable to resolve owner address %v", owner)
	}

	st, err := ConstructState(adt.AsStore(rt), resolved)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.StateCreate(st)
	return nil
}

// Binds the token ledger that holds the engine's custody. May be called once, by the owner.
func (a Actor) Initialize(rt runtime.Runtime, tokenAddr *addr.Address) *abi.EmptyValue {
	var st State
	rt.StateReadonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)

	resolved, ok := rt.ResolveAddress(*tokenAddr)
	if !ok {
		rt.Abortf(exitcode.ErrIllegalArgument, "unable to resolve token address %v", tokenAddr)
	}

	rt.StateTransaction(&st, func() {
		if st.IsInitialized() {
			rt.Abortf(ErrAlreadyInitialized, "already initialized with token %v", *st.Token)
		}
		st.Token = &resolved
	})
	rt.Log(builtin.GetActorLogLevel(a, rtt.INFO), "bound token ledger %v", resolved)
	return nil
}

type CreateGrantParams struct {
	Beneficiary addr.Address
	Amount      abi.TokenAmount
}

type CreateGrantReturn struct {
	// Index of the new grant within the beneficiary's sequence.
	Index uint64
}

// Pulls amount from the owner's ledger balance into custody and records a new grant for the beneficiary,
// starting now.
func (a Actor) CreateGrant(rt runtime.Runtime, params *CreateGrantParams) *CreateGrantReturn {
	var st State
	rt.StateReadonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)

	if !st.IsInitialized() {
		rt.Abortf(ErrNotInitialized, "token ledger not bound")
	}
	builtin.RequireParam(rt, params.Amount.GreaterThan(big.Zero()), "grant amount %v must be positive", params.Amount)

	beneficiary, ok := rt.ResolveAddress(params.Beneficiary)
	if !ok {
		rt.Abortf(exitcode.ErrIllegalArgument, "unable to resolve beneficiary address %v", params.Beneficiary)
	}
	tokenAddr := *st.Token

	var allowance abi.TokenAmount
	code := rt.Send(tokenAddr, builtin.MethodsToken.Allowance, &token.AllowanceParams{
		Owner:   st.Owner,
		Spender: rt.Receiver(),
	}, big.Zero(), &allowance)
	if !code.IsSuccess() {
		rt.Abortf(ErrTransferFailed, "failed to query allowance from %v: exit code %v", tokenAddr, code)
	}
	if allowance.LessThan(params.Amount) {
		rt.Abortf(ErrInsufficientAllowance, "allowance %v less than grant amount %v", allowance, params.Amount)
	}

	code = rt.Send(tokenAddr, builtin.MethodsToken.TransferFrom, &token.TransferFromParams{
		From:   st.Owner,
		To:     rt.Receiver(),
		Amount: params.Amount,
	}, big.Zero(), nil)
	if !code.IsSuccess() {
		rt.Abortf(ErrTransferFailed, "failed to pull %v from %v: exit code %v", params.Amount, st.Owner, code)
	}

	var index uint64
	rt.StateTransaction(&st, func() {
		var err error
		index, err = st.AddGrant(adt.AsStore(rt), beneficiary, params.Amount, rt.CurrEpoch())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to add grant for %v", beneficiary)
	})
	rt.Log(builtin.GetActorLogLevel(a, rtt.INFO), "created grant %d of %v for %v at epoch %d", index, params.Amount, beneficiary, rt.CurrEpoch())
	return &CreateGrantReturn{Index: index}
}

type ClaimReturn struct {
	// Total tokens transferred to the caller.
	Amount abi.TokenAmount
}

// Transfers the unlocked but uncollected amount of every grant held by the caller.
func (a Actor) Claim(rt runtime.Runtime, _ *abi.EmptyValue) *ClaimReturn {
	rt.ValidateImmediateCallerType(builtin.CallerTypesSignable...)
	beneficiary := rt.Caller()

	var st State
	var collections []Collection
	rt.StateTransaction(&st, func() {
		if !st.IsInitialized() {
			rt.Abortf(ErrNotInitialized, "token ledger not bound")
		}
		var err error
		collections, err = st.CollectAll(adt.AsStore(rt), beneficiary, rt.CurrEpoch())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to collect grants for %v", beneficiary)
	})

	total := big.Zero()
	for _, c := range collections {
		transferCollection(rt, *st.Token, beneficiary, c)
		total = big.Add(total, c.Amount)
	}
	if total.GreaterThan(big.Zero()) {
		rt.Log(builtin.GetActorLogLevel(a, rtt.INFO), "%v claimed %v from %d grants", beneficiary, total, len(collections))
	}
	return &ClaimReturn{Amount: total}
}

type ClaimGrantParams struct {
	Index uint64
}

// Transfers the unlocked but uncollected amount of a single grant held by the caller.
func (a Actor) ClaimGrant(rt runtime.Runtime, params *ClaimGrantParams) *ClaimReturn {
	rt.ValidateImmediateCallerType(builtin.CallerTypesSignable...)
	beneficiary := rt.Caller()

	var st State
	var amount abi.TokenAmount
	rt.StateTransaction(&st, func() {
		if !st.IsInitialized() {
			rt.Abortf(ErrNotInitialized, "token ledger not bound")
		}
		var err error
		amount, err = st.CollectOne(adt.AsStore(rt), beneficiary, params.Index, rt.CurrEpoch())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to collect grant %d for %v", params.Index, beneficiary)
	})

	if amount.GreaterThan(big.Zero()) {
		transferCollection(rt, *st.Token, beneficiary, Collection{Index: params.Index, Amount: amount})
		rt.Log(builtin.GetActorLogLevel(a, rtt.INFO), "%v claimed %v from grant %d", beneficiary, amount, params.Index)
	}
	return &ClaimReturn{Amount: amount}
}

type GrantParams struct {
	Beneficiary addr.Address
	Index       uint64
}

func (a Actor) CurrentUnlockedAmount(rt runtime.Runtime, params *GrantParams) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()
	grant := loadGrantOrAbort(rt, params)
	unlocked := grant.UnlockedAt(rt.CurrEpoch())
	return &unlocked
}

func (a Actor) CollectedAmount(rt runtime.Runtime, params *GrantParams) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()
	grant := loadGrantOrAbort(rt, params)
	return &grant.CollectedAmount
}

func (a Actor) GetGrant(rt runtime.Runtime, params *GrantParams) *Grant {
	rt.ValidateImmediateCallerAcceptAny()
	return loadGrantOrAbort(rt, params)
}

type GrantCountReturn struct {
	Count uint64
}

func (a Actor) GrantCount(rt runtime.Runtime, beneficiary *addr.Address) *GrantCountReturn {
	rt.ValidateImmediateCallerAcceptAny()

	resolved, ok := rt.ResolveAddress(*beneficiary)
	if !ok {
		return &GrantCountReturn{Count: 0}
	}
	var st State
	rt.StateReadonly(&st)
	count, err := st.BeneficiaryGrantCount(adt.AsStore(rt), resolved)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to count grants for %v", resolved)
	return &GrantCountReturn{Count: count}
}

type SummaryReturn struct {
	Owner          addr.Address
	Token          *addr.Address
	GrantCount     uint64
	TotalGranted   abi.TokenAmount
	TotalCollected abi.TokenAmount
}

func (a Actor) Summary(rt runtime.Runtime, _ *abi.EmptyValue) *SummaryReturn {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.StateReadonly(&st)
	return &SummaryReturn{
		Owner:          st.Owner,
		Token:          st.Token,
		GrantCount:     st.GrantCount,
		TotalGranted:   st.TotalGranted,
		TotalCollected: st.TotalCollected,
	}
}

func transferCollection(rt runtime.Runtime, tokenAddr, beneficiary addr.Address, c Collection) {
	code := rt.Send(tokenAddr, builtin.MethodsToken.Transfer, &token.TransferParams{
		To:     beneficiary,
		Amount: c.Amount,
	}, big.Zero(), nil)
	if !code.IsSuccess() {
		rt.Abortf(ErrTransferFailed, "failed to transfer %v from grant %d to %v: exit code %v", c.Amount, c.Index, beneficiary, code)
	}
}

func loadGrantOrAbort(rt runtime.Runtime, params *GrantParams) *Grant {
	beneficiary, ok := rt.ResolveAddress(params.Beneficiary)
	if !ok {
		rt.Abortf(ErrGrantNotFound, "no grants for unknown address %v", params.Beneficiary)
	}
	var st State
	rt.StateReadonly(&st)
	grant, found, err := st.GetGrant(adt.AsStore(rt), beneficiary, params.Index)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load grant %d for %v", params.Index, beneficiary)
	if !found {
		rt.Abortf(ErrGrantNotFound, "no grant %d for %v", params.Index, beneficiary)
	}
	return grant
}
