package vm

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
	"sync"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	cid "github.com/ipfs/go-cid"
	"github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/runtime"
	"github.com/tokenvest/vesting-actors/actors/states"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// VM holds the state and executes messages over the state.
// Messages are applied one at a time. Read-only queries may run concurrently with each other.
type VM struct {
	ctx        context.Context
	store      adt.Store
	actorImpls ActorImplLookup

	mu           sync.RWMutex
	currentEpoch abi.ChainEpoch
	roots        Roots // The last committed state tree.
	emptyObject  cid.Cid
	invocations  []*Invocation
}

type ActorImplLookup map[cid.Cid]runtime.VMActor

// MessageID identifies an applied message.
type MessageID [32]byte

func (id MessageID) String() string {
	return hex.EncodeToString(id[:])
}

// MessageResult is the receipt of a top-level message.
type MessageResult struct {
	ID   MessageID
	Ret  cbor.Marshaler
	Code exitcode.ExitCode
	// Log lines emitted by actors while processing the message, including those of rolled back sub-calls.
	Logs []string
}

type internalMessage struct {
	from   addr.Address
	to     addr.Address
	value  abi.TokenAmount
	method abi.MethodNum
	params cbor.Marshaler
}

// NewVM creates a new VM over an empty state tree.
func NewVM(ctx context.Context, actorImpls ActorImplLookup, store adt.Store) (*VM, error) {
	empty, err := emptyTree(store)
	if err != nil {
		return nil, err
	}
	roots, err := empty.flush()
	if err != nil {
		return nil, err
	}
	emptyObject, err := store.Put(ctx, []struct{}{})
	if err != nil {
		return nil, xerrors.Errorf("failed to store empty object: %w", err)
	}
	return &VM{
		ctx:         ctx,
		store:       store,
		actorImpls:  actorImpls,
		roots:       roots,
		emptyObject: emptyObject,
	}, nil
}

func (vm *VM) Store() adt.Store {
	return vm.store
}

func (vm *VM) StateRoot() Roots {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.roots
}

func (vm *VM) GetEpoch() abi.ChainEpoch {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.currentEpoch
}

func (vm *VM) SetEpoch(epoch abi.ChainEpoch) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.currentEpoch = epoch
}

// Invocations returns the invocation trees of every top-level message applied so far.
func (vm *VM) Invocations() []*Invocation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.invocations[:]
}

// LastInvocation returns the invocation tree of the most recent top-level message.
func (vm *VM) LastInvocation() *Invocation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if len(vm.invocations) == 0 {
		return nil
	}
	return vm.invocations[len(vm.invocations)-1]
}

func (vm *VM) GetActor(a addr.Address) (*Actor, bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return nil, false, err
	}
	return t.getActor(a)
}

func (vm *VM) NormalizeAddress(a addr.Address) (addr.Address, bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return addr.Undef, false, err
	}
	return t.resolve(a)
}

// ForEachActor visits every actor of the committed state tree by ID address.
func (vm *VM) ForEachActor(fn func(key addr.Address, actor *states.Actor) error) error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return err
	}
	var act Actor
	return t.actors.ForEach(&act, func(k string) error {
		key, err := addr.NewFromBytes([]byte(k))
		if err != nil {
			return xerrors.Errorf("invalid actor key %x: %w", k, err)
		}
		return fn(key, &states.Actor{Code: act.Code, Head: act.Head, Balance: act.Balance})
	})
}

var _ states.Tree = (*VM)(nil)

// GetState loads the committed state of an actor into out.
func (vm *VM) GetState(a addr.Address, out cbor.Unmarshaler) error {
	act, found, err := vm.GetActor(a)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("actor %v not found", a)
	}
	return vm.store.Get(vm.ctx, act.Head, out)
}

// ApplyMessage applies a message from an account actor to the current state.
// All state changes are rolled back if the message fails, except the sender's call sequence number.
func (vm *VM) ApplyMessage(from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) (MessageResult, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return MessageResult{}, err
	}
	fromActor, found, err := t.getActor(from)
	if err != nil {
		return MessageResult{}, err
	}
	if !found || !fromActor.Code.Equals(builtin.AccountActorCodeID) {
		// Sender does not exist or is not an account.
		return MessageResult{Code: exitcode.SysErrSenderInvalid}, nil
	}
	fromID, _, err := t.resolve(from)
	if err != nil {
		return MessageResult{}, err
	}

	paramBytes, err := serialize(params)
	if err != nil {
		return MessageResult{}, xerrors.Errorf("failed to serialize params: %w", err)
	}
	id := messageID(fromID, to, fromActor.CallSeqNum, method, value, paramBytes)

	fromActor.CallSeqNum++
	if err := t.setActor(fromID, fromActor); err != nil {
		return MessageResult{}, err
	}
	priorRoots, err := t.flush()
	if err != nil {
		return MessageResult{}, err
	}

	top := &topLevelContext{messageID: id}
	ic := newInvocationContext(vm, t, top, internalMessage{
		from:   fromID,
		to:     to,
		value:  value,
		method: method,
		params: params,
	})
	ret, code := ic.invoke()
	vm.invocations = append(vm.invocations, ic.invocation)

	// Top level messages roll back to the checkpoint in addition to the rollback within the invocation
	// context, since they can fail for more reasons than nested calls.
	if !code.IsSuccess() {
		vm.roots = priorRoots
		return MessageResult{ID: id, Ret: ret, Code: code, Logs: top.logs}, nil
	}
	roots, err := t.flush()
	if err != nil {
		return MessageResult{}, err
	}
	vm.roots = roots
	return MessageResult{ID: id, Ret: ret, Code: code, Logs: top.logs}, nil
}

// Query invokes a method against the committed state as the system actor and discards any state changes.
// Queries may run concurrently with each other, never with ApplyMessage.
func (vm *VM) Query(to addr.Address, method abi.MethodNum, params cbor.Marshaler) (cbor.Marshaler, exitcode.ExitCode, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return nil, exitcode.Ok, err
	}
	ic := newInvocationContext(vm, t, &topLevelContext{}, internalMessage{
		from:   builtin.SystemActorAddr,
		to:     to,
		value:  big.Zero(),
		method: method,
		params: params,
	})
	ret, code := ic.invoke()
	return ret, code, nil
}

// Installs a new actor with the given code and constructs it as the system actor.
// If key is not Undef, it is mapped to the new actor's ID address.
func (vm *VM) CreateActor(code cid.Cid, key addr.Address, balance abi.TokenAmount, params cbor.Marshaler) (addr.Address, MessageResult, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if _, ok := vm.actorImpls[code]; !ok {
		return addr.Undef, MessageResult{}, xerrors.Errorf("no implementation for code %v", code)
	}
	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return addr.Undef, MessageResult{}, err
	}
	idAddr, err := t.allocate(key)
	if err != nil {
		return addr.Undef, MessageResult{}, err
	}
	result, err := vm.construct(t, idAddr, code, balance, params)
	if err != nil || !result.Code.IsSuccess() {
		return addr.Undef, result, err
	}
	roots, err := t.flush()
	if err != nil {
		return addr.Undef, result, err
	}
	vm.roots = roots
	return idAddr, result, nil
}

// Installs an actor with explicit state at a fixed ID address without running its constructor.
// This is how genesis actors come into existence.
func (vm *VM) installActor(code cid.Cid, idAddr addr.Address, state cbor.Marshaler, balance abi.TokenAmount) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	t, err := loadTree(vm.store, vm.roots)
	if err != nil {
		return err
	}
	head, err := vm.store.Put(vm.ctx, state)
	if err != nil {
		return xerrors.Errorf("failed to store state of %v: %w", idAddr, err)
	}
	if err := t.setActor(idAddr, &Actor{Code: code, Head: head, Balance: balance}); err != nil {
		return err
	}
	roots, err := t.flush()
	if err != nil {
		return err
	}
	vm.roots = roots
	return nil
}

func (vm *VM) construct(t *tree, idAddr addr.Address, code cid.Cid, balance abi.TokenAmount, params cbor.Marshaler) (MessageResult, error) {
	if err := t.setActor(idAddr, &Actor{Code: code, Head: vm.emptyObject, Balance: balance}); err != nil {
		return MessageResult{}, err
	}
	top := &topLevelContext{}
	ic := newInvocationContext(vm, t, top, internalMessage{
		from:   builtin.SystemActorAddr,
		to:     idAddr,
		value:  big.Zero(),
		method: builtin.MethodConstructor,
		params: params,
	})
	ret, exit := ic.invoke()
	vm.invocations = append(vm.invocations, ic.invocation)
	return MessageResult{Ret: ret, Code: exit, Logs: top.logs}, nil
}

func (vm *VM) getActorImpl(code cid.Cid) (runtime.VMActor, bool) {
	impl, ok := vm.actorImpls[code]
	return impl, ok
}

// Computes a message identifier from its sender, receiver, sequence number, method, value and params.
func messageID(from, to addr.Address, seq uint64, method abi.MethodNum, value abi.TokenAmount, params []byte) MessageID {
	var buf bytes.Buffer
	buf.Write(from.Bytes())
	buf.Write(to.Bytes())
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], seq)
	buf.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(method))
	buf.Write(scratch[:])
	if vb, err := value.Bytes(); err == nil {
		buf.Write(vb)
	}
	buf.Write(params)
	return blake2b.Sum256(buf.Bytes())
}

func serialize(o cbor.Marshaler) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	if v := reflect.ValueOf(o); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := o.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type abort struct {
	code exitcode.ExitCode
	msg  string
}

func (a abort) String() string {
	return fmt.Sprintf("abort(%v): %s", a.code, a.msg)
}
