package mock

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/tokenvest/vesting-actors/actors/runtime"
)

// Runtime runs a single actor method outside the VM. Callers script the caller, epoch and
// expected sends up front; Verify then checks every expectation was consumed.
type Runtime struct {
	ctx           context.Context
	epoch         abi.ChainEpoch
	receiver      addr.Address
	caller        addr.Address
	callerType    cid.Cid
	valueReceived abi.TokenAmount
	idAddresses   map[addr.Address]addr.Address
	actorCodeCIDs map[addr.Address]cid.Cid

	// Actor state
	state   cid.Cid
	balance abi.TokenAmount

	// VM implementation
	inCall        bool
	store         map[cid.Cid][]byte
	inTransaction bool
	logs          []string

	// Expectations
	t                        testing.TB
	expectValidateCallerAny  bool
	expectValidateCallerAddr []addr.Address
	expectValidateCallerType []cid.Cid
	expectSends              []*expectedMessage
	expectLogsContain        []string
}

type expectedMessage struct {
	to     addr.Address
	method abi.MethodNum
	params cbor.Marshaler
	value  abi.TokenAmount

	sendReturn cbor.Marshaler
	exitCode   exitcode.ExitCode
}

func (m *expectedMessage) Equal(to addr.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) bool {
	if m.to != to || m.method != method || !m.value.Equals(value) {
		return false
	}
	expected, err := marshal(m.params)
	if err != nil {
		return false
	}
	actual, err := marshal(params)
	if err != nil {
		return false
	}
	return bytes.Equal(expected, actual)
}

func (m *expectedMessage) String() string {
	return fmt.Sprintf("to: %v method: %v value: %v params: %v sendReturn: %v exitCode: %v", m.to, m.method, m.value, m.params, m.sendReturn, m.exitCode)
}

var _ runtime.Runtime = &Runtime{}
var _ runtime.StateHandle = &Runtime{}
var typeOfRuntimeInterface = reflect.TypeOf((*runtime.Runtime)(nil)).Elem()
var typeOfCborUnmarshaler = reflect.TypeOf((*cbor.Unmarshaler)(nil)).Elem()
var typeOfCborMarshaler = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()

var cidBuilder = cid.V1Builder{
	Codec:    cid.DagCBOR,
	MhType:   mh.SHA2_256,
	MhLength: 0, // default
}

// runtime.Runtime

func (rt *Runtime) CurrEpoch() abi.ChainEpoch {
	rt.requireInCall()
	return rt.epoch
}

func (rt *Runtime) ValidateImmediateCallerAcceptAny() {
	rt.requireInCall()
	if !rt.expectValidateCallerAny {
		rt.failTest("unexpected validate-caller-any")
	}
	rt.expectValidateCallerAny = false
}

func (rt *Runtime) ValidateImmediateCallerIs(addrs ...addr.Address) {
	rt.requireInCall()
	rt.checkArgument(len(addrs) > 0, "addrs must be non-empty")
	// Check and clear expectations.
	if len(rt.expectValidateCallerAddr) == 0 {
		rt.failTest("unexpected validate caller addrs")
		return
	}
	if !reflect.DeepEqual(rt.expectValidateCallerAddr, addrs) {
		rt.failTest("unexpected validate caller addrs %v, expected %v", addrs, rt.expectValidateCallerAddr)
		return
	}
	defer func() {
		rt.expectValidateCallerAddr = nil
	}()

	// Implement method.
	for _, expected := range addrs {
		if rt.caller == expected {
			return
		}
	}
	rt.Abortf(exitcode.ErrForbidden, "caller address %v forbidden, allowed: %v", rt.caller, addrs)
}

func (rt *Runtime) ValidateImmediateCallerType(types ...cid.Cid) {
	rt.requireInCall()
	rt.checkArgument(len(types) > 0, "types must be non-empty")

	// Check and clear expectations.
	if len(rt.expectValidateCallerType) == 0 {
		rt.failTest("unexpected validate caller code")
	}
	if !reflect.DeepEqual(rt.expectValidateCallerType, types) {
		rt.failTest("unexpected validate caller code %v, expected %v", types, rt.expectValidateCallerType)
	}
	defer func() {
		rt.expectValidateCallerType = nil
	}()

	// Implement method.
	for _, expected := range types {
		if rt.callerType.Equals(expected) {
			return
		}
	}
	rt.Abortf(exitcode.ErrForbidden, "caller type %v forbidden, allowed: %v", rt.callerType, types)
}

func (rt *Runtime) CurrentBalance() abi.TokenAmount {
	rt.requireInCall()
	return rt.balance
}

func (rt *Runtime) ResolveAddress(address addr.Address) (ret addr.Address, ok bool) {
	rt.requireInCall()
	if address.Protocol() == addr.ID {
		return address, true
	}
	resolved, ok := rt.idAddresses[address]
	return resolved, ok
}

func (rt *Runtime) GetActorCodeCID(addr addr.Address) (ret cid.Cid, ok bool) {
	rt.requireInCall()
	ret, ok = rt.actorCodeCIDs[addr]
	return
}

func (rt *Runtime) Send(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode {
	rt.requireInCall()
	if rt.inTransaction {
		rt.Abortf(exitcode.SysErrorIllegalActor, "side-effect within transaction")
	}
	if len(rt.expectSends) == 0 {
		rt.failTestNow("unexpected send to: %v method: %v, value: %v, params: %v", toAddr, methodNum, value, params)
	}
	expectedMsg := rt.expectSends[0]

	if !expectedMsg.Equal(toAddr, methodNum, params, value) {
		rt.failTest("send does not match expectation.\n"+
			"Call     - to: %v method: %v value: %v params: %v\n"+
			"Expected - %v", toAddr, methodNum, value, params, rt.expectSends[0])
	}

	if value.GreaterThan(rt.balance) {
		rt.Abortf(exitcode.SysErrInsufficientFunds, "cannot send value: %v exceeds balance: %v", value, rt.balance)
	}

	defer func() {
		rt.expectSends = rt.expectSends[1:]
		if expectedMsg.exitCode.IsSuccess() {
			rt.balance = big.Sub(rt.balance, value)
		}
	}()

	if expectedMsg.exitCode.IsSuccess() && out != nil && expectedMsg.sendReturn != nil {
		data, err := marshal(expectedMsg.sendReturn)
		if err != nil {
			rt.failTestNow("failed to marshal send return %v: %v", expectedMsg.sendReturn, err)
		}
		if err := out.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
			rt.failTestNow("failed to unmarshal send return into %T: %v", out, err)
		}
	}
	return expectedMsg.exitCode
}

func (rt *Runtime) Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{}) {
	rt.requireInCall()
	rt.t.Logf("Mock Runtime Abort ExitCode: %v Reason: %s", errExitCode, fmt.Sprintf(msg, args...))
	panic(abort{errExitCode, fmt.Sprintf(msg, args...)})
}

func (rt *Runtime) Context() context.Context {
	// requireInCall omitted because it makes using this mock runtime as a store awkward.
	return rt.ctx
}

func (rt *Runtime) StartSpan(_ string) func() {
	rt.requireInCall()
	return func() {}
}

func (rt *Runtime) Log(level rtt.LogLevel, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	rt.logs = append(rt.logs, formatted)
	rt.t.Logf("log(%v): %s", level, formatted)
}

func (rt *Runtime) checkArgument(predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.SysErrorIllegalArgument, msg, args...)
	}
}

// runtime.Store

func (rt *Runtime) StoreGet(c cid.Cid, o cbor.Unmarshaler) bool {
	// requireInCall omitted because it makes using this mock runtime as a store awkward.
	data, found := rt.store[c]
	if found {
		err := o.UnmarshalCBOR(bytes.NewReader(data))
		if err != nil {
			rt.Abortf(exitcode.ErrSerialization, err.Error())
		}
	}
	return found
}

func (rt *Runtime) StorePut(o cbor.Marshaler) cid.Cid {
	// requireInCall omitted because it makes using this mock runtime as a store awkward.
	data, err := marshal(o)
	if err != nil {
		rt.Abortf(exitcode.ErrSerialization, err.Error())
	}
	key, err := cidBuilder.Sum(data)
	if err != nil {
		rt.Abortf(exitcode.ErrSerialization, err.Error())
	}
	rt.store[key] = data
	return key
}

// runtime.Message

func (rt *Runtime) Caller() addr.Address {
	return rt.caller
}

func (rt *Runtime) Receiver() addr.Address {
	return rt.receiver
}

func (rt *Runtime) ValueReceived() abi.TokenAmount {
	return rt.valueReceived
}

// runtime.StateHandle

func (rt *Runtime) StateCreate(obj cbor.Marshaler) {
	if rt.state.Defined() {
		rt.Abortf(exitcode.SysErrorIllegalActor, "state already constructed")
	}
	rt.state = rt.StorePut(obj)
}

func (rt *Runtime) StateReadonly(st cbor.Unmarshaler) {
	found := rt.StoreGet(rt.state, st)
	if !found {
		rt.Abortf(exitcode.SysErrorIllegalActor, "actor state not found: %v", rt.state)
	}
}

func (rt *Runtime) StateTransaction(st cbor.Er, f func()) {
	if rt.inTransaction {
		rt.Abortf(exitcode.SysErrorIllegalActor, "nested transaction")
	}
	rt.StateReadonly(st)
	rt.inTransaction = true
	defer func() { rt.inTransaction = false }()
	f()
	rt.state = rt.StorePut(st)
}

type abort struct {
	code exitcode.ExitCode
	msg  string
}

func (a abort) String() string {
	return fmt.Sprintf("abort(%v): %s", a.code, a.msg)
}


func (rt *Runtime) GetState(o cbor.Unmarshaler) {
	data, found := rt.store[rt.state]
	if !found {
		rt.failTestNow("can't find state at root %v", rt.state) // something internal is messed up
	}
	err := o.UnmarshalCBOR(bytes.NewReader(data))
	if err != nil {
		rt.failTestNow("error loading state: %v", err)
	}
}

// Test setup and expectations.

func (rt *Runtime) SetCaller(address addr.Address, actorType cid.Cid) {
	rt.caller = address
	rt.callerType = actorType
	rt.actorCodeCIDs[address] = actorType
}

func (rt *Runtime) SetEpoch(epoch abi.ChainEpoch) {
	rt.epoch = epoch
}

func (rt *Runtime) AddIDAddress(src addr.Address, target addr.Address) {
	rt.require(target.Protocol() == addr.ID, "target must use ID address protocol")
	rt.idAddresses[src] = target
}

func (rt *Runtime) ExpectValidateCallerAny() {
	rt.expectValidateCallerAny = true
}

func (rt *Runtime) ExpectValidateCallerAddr(addrs ...addr.Address) {
	rt.require(len(addrs) > 0, "addrs must be non-empty")
	rt.expectValidateCallerAddr = addrs[:]
}

func (rt *Runtime) ExpectValidateCallerType(types ...cid.Cid) {
	rt.require(len(types) > 0, "types must be non-empty")
	rt.expectValidateCallerType = types[:]
}

func (rt *Runtime) ExpectSend(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, ret cbor.Marshaler, exitCode exitcode.ExitCode) {
	rt.expectSends = append(rt.expectSends, &expectedMessage{
		to:         toAddr,
		method:     methodNum,
		params:     params,
		value:      value,
		sendReturn: ret,
		exitCode:   exitCode,
	})
}

// Expects a log line containing the substring to be emitted before the next Verify.
func (rt *Runtime) ExpectLogsContain(substr string) {
	rt.expectLogsContain = append(rt.expectLogsContain, substr)
}

// Verifies that expected calls were received, and resets all expectations.
func (rt *Runtime) Verify() {
	if rt.expectValidateCallerAny {
		rt.failTest("expected ValidateCallerAny, not received")
	}
	if len(rt.expectValidateCallerAddr) > 0 {
		rt.failTest("expected ValidateCallerAddr %v, not received", rt.expectValidateCallerAddr)
	}
	if len(rt.expectValidateCallerType) > 0 {
		rt.failTest("expected ValidateCallerType %v, not received", rt.expectValidateCallerType)
	}
	if len(rt.expectSends) > 0 {
		rt.failTest("expected all message to be send, unsent messages %v", rt.expectSends)
	}
	for _, substr := range rt.expectLogsContain {
		found := false
		for _, line := range rt.logs {
			if strings.Contains(line, substr) {
				found = true
				break
			}
		}
		if !found {
			rt.failTest("expected log line containing %q, got %v", substr, rt.logs)
		}
	}

	rt.reset()
}

func (rt *Runtime) reset() {
	rt.expectValidateCallerAny = false
	rt.expectValidateCallerAddr = nil
	rt.expectValidateCallerType = nil
	rt.expectSends = make([]*expectedMessage, 0)
	rt.expectLogsContain = nil
	rt.logs = nil
}

// Calls f() expecting it to invoke Runtime.Abortf() with a specified exit code.
func (rt *Runtime) ExpectAbort(expected exitcode.ExitCode, f func()) {
	rt.ExpectAbortContainsMessage(expected, "", f)
}

// Calls f() expecting an abort with the exit code and a message containing the substring.
func (rt *Runtime) ExpectAbortContainsMessage(expected exitcode.ExitCode, substr string, f func()) {
	prevState := rt.state

	defer func() {
		r := recover()
		if r == nil {
			rt.failTest("expected abort with code %v but call succeeded", expected)
			return
		}
		a, ok := r.(abort)
		if !ok {
			panic(r)
		}
		if a.code != expected {
			rt.failTest("abort expected code %v, got %v %s", expected, a.code, a.msg)
		}
		if substr != "" && !strings.Contains(a.msg, substr) {
			rt.failTest("abort expected message containing %q, got %q", substr, a.msg)
		}
		// Roll back state change.
		rt.state = prevState
		rt.inTransaction = false
	}()
	f()
}

func (rt *Runtime) Call(method interface{}, params interface{}) interface{} {
	meth := reflect.ValueOf(method)
	rt.verifyExportedMethodType(meth)

	// There's no panic recovery here. If an abort is expected, this call will be inside an ExpectAbort block.
	// If not expected, the panic will escape and cause the test to fail.

	rt.inCall = true
	defer func() { rt.inCall = false }()
	var arg reflect.Value
	if params != nil {
		arg = reflect.ValueOf(params)
	} else {
		arg = reflect.Zero(meth.Type().In(1))
	}
	ret := meth.Call([]reflect.Value{reflect.ValueOf(rt), arg})
	return ret[0].Interface()
}

func (rt *Runtime) verifyExportedMethodType(meth reflect.Value) {
	t := meth.Type()
	rt.require(t.Kind() == reflect.Func, "%v is not a function", meth)
	rt.require(t.NumIn() == 2, "exported method %v must have two parameters, got %v", meth, t.NumIn())
	rt.require(t.In(0) == typeOfRuntimeInterface, "exported method first parameter must be runtime, got %v", t.In(0))
	rt.require(t.In(1).Kind() == reflect.Ptr, "exported method second parameter must be pointer to params, got %v", t.In(1))
	rt.require(t.In(1).Implements(typeOfCborUnmarshaler), "exported method second parameter must be CBOR-unmarshalable params, got %v", t.In(1))
	rt.require(t.NumOut() == 1, "exported method must return a single value")
	rt.require(t.Out(0).Implements(typeOfCborMarshaler), "exported method must return CBOR-marshalable value")
}

func (rt *Runtime) requireInCall() {
	rt.require(rt.inCall, "invalid runtime invocation outside of method call")
}

func (rt *Runtime) require(predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.failTestNow(msg, args...)
	}
}

func (rt *Runtime) failTest(msg string, args ...interface{}) {
	rt.t.Logf(msg, args...)
	rt.t.Logf("%s", debug.Stack())
	rt.t.Fail()
}

func (rt *Runtime) failTestNow(msg string, args ...interface{}) {
	rt.t.Logf(msg, args...)
	rt.t.Logf("%s", debug.Stack())
	rt.t.FailNow()
}

func marshal(o cbor.Marshaler) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	if v := reflect.ValueOf(o); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, nil
	}
	buf := bytes.Buffer{}
	if err := o.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
