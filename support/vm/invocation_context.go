package vm

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/runtime"
)

// Context shared by all invocations of one top-level message.
type topLevelContext struct {
	messageID MessageID
	logs      []string
}

// Invocation records a message executed by the VM and the messages it sent in turn.
type Invocation struct {
	From           addr.Address
	To             addr.Address
	Value          abi.TokenAmount
	Method         abi.MethodNum
	Params         cbor.Marshaler
	Exitcode       exitcode.ExitCode
	Ret            cbor.Marshaler
	SubInvocations []*Invocation
}

// Implements runtime.Runtime for the execution of a single message.
type invocationContext struct {
	vm               *VM
	tree             *tree
	topLevel         *topLevelContext
	msg              internalMessage
	invocation       *Invocation
	callerValidated  bool
	allowSideEffects bool
}

var _ runtime.Runtime = (*invocationContext)(nil)

var typeOfRuntimeInterface = reflect.TypeOf((*runtime.Runtime)(nil)).Elem()
var typeOfCborUnmarshaler = reflect.TypeOf((*cbor.Unmarshaler)(nil)).Elem()

func newInvocationContext(vm *VM, t *tree, topLevel *topLevelContext, msg internalMessage) *invocationContext {
	return &invocationContext{
		vm:       vm,
		tree:     t,
		topLevel: topLevel,
		msg:      msg,
		invocation: &Invocation{
			From:   msg.from,
			To:     msg.to,
			Value:  msg.value,
			Method: msg.method,
			Params: msg.params,
		},
		allowSideEffects: true,
	}
}

// Executes the message, recovering aborts into exit codes.
// The caller is responsible for rolling back state if the exit code is not Ok.
func (ic *invocationContext) invoke() (ret cbor.Marshaler, code exitcode.ExitCode) {
	defer func() {
		if r := recover(); r != nil {
			a, ok := r.(abort)
			if !ok {
				a = abort{exitcode.SysErrorIllegalActor, fmt.Sprintf("panic: %v\n%s", r, debug.Stack())}
			}
			ic.record(fmt.Sprintf("%v aborted method %d: %s", ic.msg.to, ic.msg.method, a))
			ret, code = nil, a.code
		}
		ic.invocation.Ret = ret
		ic.invocation.Exitcode = code
	}()

	toID, found, err := ic.tree.resolve(ic.msg.to)
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to resolve receiver: %v", err)
	}
	if !found {
		ic.Abortf(exitcode.SysErrInvalidReceiver, "receiver %v not found", ic.msg.to)
	}
	ic.msg.to = toID
	ic.invocation.To = toID

	toActor, found, err := ic.tree.getActor(toID)
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to load receiver: %v", err)
	}
	if !found {
		ic.Abortf(exitcode.SysErrInvalidReceiver, "actor %v not found", toID)
	}

	if err := ic.tree.transfer(ic.msg.from, toID, ic.msg.value); err != nil {
		ic.Abortf(exitcode.SysErrInsufficientFunds, "failed to transfer value: %v", err)
	}

	if ic.msg.method == builtin.MethodSend {
		return nil, exitcode.Ok
	}

	impl, ok := ic.vm.getActorImpl(toActor.Code)
	if !ok {
		ic.Abortf(exitcode.SysErrInvalidReceiver, "no implementation for code %v", toActor.Code)
	}
	exports := impl.Exports()
	if uint64(ic.msg.method) >= uint64(len(exports)) || exports[ic.msg.method] == nil {
		ic.Abortf(exitcode.SysErrInvalidMethod, "actor %v has no method %d", toID, ic.msg.method)
	}
	meth := reflect.ValueOf(exports[ic.msg.method])
	arg := ic.decodeParams(meth.Type().In(1))

	out := meth.Call([]reflect.Value{reflect.ValueOf(ic), arg})
	if !ic.callerValidated {
		ic.Abortf(exitcode.SysErrorIllegalActor, "caller MUST be validated during method execution")
	}

	ret, ok = out[0].Interface().(cbor.Marshaler)
	if !ok {
		ic.Abortf(exitcode.SysErrorIllegalActor, "method %d returned %T, not a marshaler", ic.msg.method, out[0].Interface())
	}
	return ret, exitcode.Ok
}

// Decodes params through their serialized form so actors never share memory with the sender.
func (ic *invocationContext) decodeParams(paramType reflect.Type) reflect.Value {
	if !paramType.Implements(typeOfCborUnmarshaler) || paramType.Kind() != reflect.Ptr {
		ic.Abortf(exitcode.SysErrorIllegalActor, "method parameter %v is not an unmarshalable pointer", paramType)
	}
	data, err := serialize(ic.msg.params)
	if err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to serialize params: %v", err)
	}
	if data == nil {
		return reflect.Zero(paramType)
	}
	arg := reflect.New(paramType.Elem())
	if err := arg.Interface().(cbor.Unmarshaler).UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to decode params as %v: %v", paramType, err)
	}
	return arg
}

func (ic *invocationContext) record(line string) {
	ic.topLevel.logs = append(ic.topLevel.logs, line)
}

///// Message /////

func (ic *invocationContext) Caller() addr.Address {
	return ic.msg.from
}

func (ic *invocationContext) Receiver() addr.Address {
	return ic.msg.to
}

func (ic *invocationContext) ValueReceived() abi.TokenAmount {
	return ic.msg.value
}

///// Runtime /////

func (ic *invocationContext) CurrEpoch() abi.ChainEpoch {
	return ic.vm.currentEpoch
}

func (ic *invocationContext) ValidateImmediateCallerAcceptAny() {
	ic.assertCallerNotValidated()
	ic.callerValidated = true
}

func (ic *invocationContext) ValidateImmediateCallerIs(addrs ...addr.Address) {
	ic.assertCallerNotValidated()
	ic.callerValidated = true
	for _, a := range addrs {
		if a == ic.msg.from {
			return
		}
	}
	ic.Abortf(exitcode.ErrForbidden, "caller %v is not one of %v", ic.msg.from, addrs)
}

func (ic *invocationContext) ValidateImmediateCallerType(types ...cid.Cid) {
	ic.assertCallerNotValidated()
	ic.callerValidated = true
	code, ok := ic.GetActorCodeCID(ic.msg.from)
	if !ok {
		ic.Abortf(exitcode.ErrForbidden, "caller %v not found", ic.msg.from)
	}
	for _, t := range types {
		if t.Equals(code) {
			return
		}
	}
	ic.Abortf(exitcode.ErrForbidden, "caller type %v is not one of %v", builtin.ActorNameByCode(code), types)
}

func (ic *invocationContext) assertCallerNotValidated() {
	if ic.callerValidated {
		ic.Abortf(exitcode.SysErrorIllegalActor, "caller validated twice")
	}
}

func (ic *invocationContext) CurrentBalance() abi.TokenAmount {
	return ic.loadReceiver().Balance
}

func (ic *invocationContext) ResolveAddress(a addr.Address) (addr.Address, bool) {
	resolved, found, err := ic.tree.resolve(a)
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to resolve %v: %v", a, err)
	}
	return resolved, found
}

func (ic *invocationContext) GetActorCodeCID(a addr.Address) (cid.Cid, bool) {
	act, found, err := ic.tree.getActor(a)
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to load actor %v: %v", a, err)
	}
	if !found {
		return cid.Undef, false
	}
	return act.Code, true
}

func (ic *invocationContext) Send(to addr.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode {
	if !ic.allowSideEffects {
		ic.Abortf(exitcode.SysErrorIllegalActor, "calling Send() is not allowed during side-effect lock")
	}
	checkpoint, err := ic.tree.flush()
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to checkpoint state: %v", err)
	}

	sub := newInvocationContext(ic.vm, ic.tree, ic.topLevel, internalMessage{
		from:   ic.msg.to,
		to:     to,
		value:  value,
		method: method,
		params: params,
	})
	ret, code := sub.invoke()
	ic.invocation.SubInvocations = append(ic.invocation.SubInvocations, sub.invocation)

	if !code.IsSuccess() {
		restored, err := loadTree(ic.vm.store, checkpoint)
		if err != nil {
			ic.Abortf(exitcode.SysErrorIllegalActor, "failed to roll back state: %v", err)
		}
		*ic.tree = *restored
		return code
	}

	if out != nil {
		data, err := serialize(ret)
		if err != nil {
			ic.Abortf(exitcode.ErrSerialization, "failed to serialize return value: %v", err)
		}
		if data != nil {
			if err := out.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
				ic.Abortf(exitcode.ErrSerialization, "failed to decode return value as %T: %v", out, err)
			}
		}
	}
	return code
}

func (ic *invocationContext) Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	panic(abort{code, fmt.Sprintf(msg, args...)})
}

func (ic *invocationContext) Context() context.Context {
	return ic.vm.ctx
}

func (ic *invocationContext) StartSpan(_ string) func() {
	return func() {}
}

func (ic *invocationContext) Log(level rtt.LogLevel, msg string, args ...interface{}) {
	ic.record(fmt.Sprintf("%s %v: %s", levelName(level), ic.msg.to, fmt.Sprintf(msg, args...)))
}

func levelName(level rtt.LogLevel) string {
	switch level {
	case rtt.DEBUG:
		return "DEBUG"
	case rtt.INFO:
		return "INFO"
	case rtt.WARN:
		return "WARN"
	case rtt.ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}

///// Store /////

func (ic *invocationContext) StoreGet(c cid.Cid, o cbor.Unmarshaler) bool {
	if err := ic.vm.store.Get(ic.vm.ctx, c, o); err != nil {
		return false
	}
	return true
}

func (ic *invocationContext) StorePut(o cbor.Marshaler) cid.Cid {
	c, err := ic.vm.store.Put(ic.vm.ctx, o)
	if err != nil {
		ic.Abortf(exitcode.ErrIllegalState, "failed to store object: %v", err)
	}
	return c
}

///// State handle /////

func (ic *invocationContext) StateCreate(obj cbor.Marshaler) {
	act := ic.loadReceiver()
	if !act.Head.Equals(ic.vm.emptyObject) {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to create state; expected empty state, found %v", act.Head)
	}
	ic.replaceHead(ic.StorePut(obj))
}

func (ic *invocationContext) StateReadonly(obj cbor.Unmarshaler) {
	act := ic.loadReceiver()
	if !ic.StoreGet(act.Head, obj) {
		ic.Abortf(exitcode.SysErrorIllegalActor, "actor state not found: %v", act.Head)
	}
}

func (ic *invocationContext) StateTransaction(obj cbor.Er, f func()) {
	if !ic.allowSideEffects {
		ic.Abortf(exitcode.SysErrorIllegalActor, "nested transaction")
	}
	ic.StateReadonly(obj)
	ic.allowSideEffects = false
	f()
	ic.allowSideEffects = true
	ic.replaceHead(ic.StorePut(obj))
}

// Reloads the receiver, since nested sends may have changed its balance.
func (ic *invocationContext) loadReceiver() *Actor {
	act, found, err := ic.tree.getActor(ic.msg.to)
	if err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to load receiver: %v", err)
	}
	if !found {
		ic.Abortf(exitcode.SysErrorIllegalActor, "receiver %v not found", ic.msg.to)
	}
	return act
}

func (ic *invocationContext) replaceHead(head cid.Cid) {
	act := ic.loadReceiver()
	act.Head = head
	if err := ic.tree.setActor(ic.msg.to, act); err != nil {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to update receiver: %v", err)
	}
}
