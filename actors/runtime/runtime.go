package runtime

import (
	"context"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"
)

// VMActor is implemented by every actor the VM can invoke: a code CID plus a method table.
type VMActor = rt.VMActor

// Runtime is the surface an actor method sees while it executes.
// Values in Message describe the current invocation, which for a nested Send is the sub-call.
type Runtime interface {
	Message

	// Current epoch. Vesting schedules are measured against this.
	CurrEpoch() abi.ChainEpoch

	// Every exported method must validate its caller once before returning.
	ValidateImmediateCallerAcceptAny()
	ValidateImmediateCallerIs(addrs ...addr.Address)
	ValidateImmediateCallerType(types ...cid.Cid)

	// Native balance held by the receiver.
	CurrentBalance() abi.TokenAmount

	// Maps a key address to its ID address. ID addresses are returned unchanged.
	ResolveAddress(address addr.Address) (addr.Address, bool)

	// Code CID of the actor at addr, resolving non-ID addresses first.
	GetActorCodeCID(addr addr.Address) (ret cid.Cid, ok bool)

	// Invokes a method on another actor. A non-Ok exit code means the callee's
	// state changes were discarded; out is only decoded on success.
	Send(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode

	// Aborts the current invocation with the given code, reverting its state changes. Does not return.
	Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{})

	StateHandle
	Store

	// Context for HAMT and AMT operations. Actor logic should not depend on it.
	Context() context.Context

	// Opens a tracing span; the returned func closes it.
	StartSpan(name string) (EndSpan func())

	// Debug logging, attached to the message result.
	Log(level rt.LogLevel, msg string, args ...interface{})
}

// Store is the content-addressed block store available to actors.
type Store interface {
	StoreGet(c cid.Cid, o cbor.Unmarshaler) bool
	StorePut(x cbor.Marshaler) cid.Cid
}

// Message describes the invocation being executed.
type Message interface {
	// Immediate caller, always an ID address.
	Caller() addr.Address
	// Actor being invoked, always an ID address.
	Receiver() addr.Address
	// Value transferred from Caller with this message.
	ValueReceived() abi.TokenAmount
}

// StateHandle gives an actor exclusive access to its own state object.
type StateHandle interface {
	// Sets the initial state. Only legal while the actor has no state.
	StateCreate(obj cbor.Marshaler)

	// Loads a copy of the state that must not be modified.
	StateReadonly(obj cbor.Unmarshaler)

	// Loads the state into obj, runs f, then persists obj. Sends are forbidden inside f
	// and mutating obj after f returns aborts the invocation.
	StateTransaction(obj cbor.Er, f func())
}
