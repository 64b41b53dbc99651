package vm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/states"
)

// Creates a VM with singletons, failing the test on error.
func NewVMWithSingletonsT(ctx context.Context, t testing.TB) *VM {
	vm, err := NewVMWithSingletons(ctx)
	require.NoError(t, err)
	return vm
}

// Creates an account actor for each key address, returning their ID addresses.
func CreateAccounts(t testing.TB, vm *VM, balance abi.TokenAmount, pubkeys ...addr.Address) []addr.Address {
	ids := make([]addr.Address, len(pubkeys))
	for i, pubkey := range pubkeys {
		id, err := vm.CreateAccount(pubkey, balance)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

// Applies a message, failing the test unless it succeeds.
func ApplyOk(t testing.TB, vm *VM, from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) cbor.Marshaler {
	return ApplyCode(t, vm, from, to, value, method, params, exitcode.Ok)
}

// Applies a message, failing the test unless it exits with the expected code.
func ApplyCode(t testing.TB, vm *VM, from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler, code exitcode.ExitCode) cbor.Marshaler {
	result, err := vm.ApplyMessage(from, to, value, method, params)
	require.NoError(t, err)
	require.Equal(t, code, result.Code, "unexpected exit code applying method %d to %v, logs: %v", method, to, result.Logs)
	return result.Ret
}

// Queries a method, failing the test unless it succeeds, and decodes the return value into out.
func QueryOk(t testing.TB, vm *VM, to addr.Address, method abi.MethodNum, params cbor.Marshaler, out cbor.Unmarshaler) {
	ret, code, err := vm.Query(to, method, params)
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, code, "query of method %d on %v failed", method, to)
	var buf bytes.Buffer
	require.NoError(t, ret.MarshalCBOR(&buf))
	require.NoError(t, out.UnmarshalCBOR(&buf))
}

// Checks the invariants of every actor in the committed state and across them.
func AssertStateInvariants(t testing.TB, vm *VM) {
	acc, err := states.CheckStateInvariants(vm)
	require.NoError(t, err)
	assert.True(t, acc.IsEmpty(), strings.Join(acc.Messages(), "\n"))
}

// Loads the committed state of an actor, failing the test on error.
func GetStateT(t testing.TB, vm *VM, a addr.Address, out cbor.Unmarshaler) {
	require.NoError(t, vm.GetState(a, out))
}

//
// Invocation expectations
//

func ExpectObject(v cbor.Marshaler) *objectExpectation {
	return &objectExpectation{v}
}

// distinguishes a non-expectation from an expectation of nil
type objectExpectation struct {
	val cbor.Marshaler
}

func ExpectAddress(a addr.Address) *addr.Address               { return &a }
func ExpectAmount(amount abi.TokenAmount) *abi.TokenAmount     { return &amount }
func ExpectExitCode(code exitcode.ExitCode) *exitcode.ExitCode { return &code }

// match by cbor encoding to avoid inconsistencies in internal representations of effectively equal objects
func (oe objectExpectation) matches(obj cbor.Marshaler) bool {
	expected, err := serialize(oe.val)
	if err != nil {
		return false
	}
	actual, err := serialize(obj)
	if err != nil {
		return false
	}
	return bytes.Equal(expected, actual)
}

type ExpectInvocation struct {
	To       addr.Address
	Method   abi.MethodNum
	Exitcode exitcode.ExitCode

	From           *addr.Address
	Value          *abi.TokenAmount
	Params         *objectExpectation
	Ret            *objectExpectation
	SubInvocations []ExpectInvocation
}

func (ei ExpectInvocation) Matches(t testing.TB, invocation *Invocation) {
	ei.matches(t, "", invocation)
}

func (ei ExpectInvocation) matches(t testing.TB, breadcrumb string, invocation *Invocation) {
	identifier := fmt.Sprintf("%s[%s:%d]", breadcrumb, invocation.To, invocation.Method)

	// mismatch of to or method probably indicates skipped message or messages out of order. halt.
	require.Equal(t, ei.To, invocation.To, "%s unexpected `to` address", identifier)
	require.Equal(t, ei.Method, invocation.Method, "%s unexpected method", identifier)

	// other expectations are optional
	if ei.From != nil {
		assert.Equal(t, *ei.From, invocation.From, "%s unexpected from address", identifier)
	}
	if ei.Value != nil {
		assert.True(t, ei.Value.Equals(invocation.Value), "%s unexpected value %v", identifier, invocation.Value)
	}
	if ei.Params != nil {
		assert.True(t, ei.Params.matches(invocation.Params), "%s params aren't equal (%v != %v)", identifier, ei.Params.val, invocation.Params)
	}
	if ei.SubInvocations != nil {
		for i, invk := range invocation.SubInvocations {
			subidentifier := fmt.Sprintf("%s%d:", identifier, i)
			require.Greater(t, len(ei.SubInvocations), i, "%s unexpected subinvocation [%s:%d]", subidentifier, invk.To, invk.Method)
			ei.SubInvocations[i].matches(t, subidentifier, invk)
		}
		if missing := len(ei.SubInvocations) - len(invocation.SubInvocations); missing > 0 {
			missingExpect := ei.SubInvocations[len(invocation.SubInvocations)]
			require.Failf(t, "missing invocation", "%s%d: expected invocation [%s:%d]", identifier, len(invocation.SubInvocations), missingExpect.To, missingExpect.Method)
		}
	}

	// expect results
	assert.Equal(t, ei.Exitcode, invocation.Exitcode, "%s unexpected exitcode", identifier)
	if ei.Ret != nil {
		assert.True(t, ei.Ret.matches(invocation.Ret), "%s unexpected return value (%v != %v)", identifier, ei.Ret.val, invocation.Ret)
	}
}
