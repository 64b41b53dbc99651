package mock

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/runtime"
)

// CheckActorExports checks that every exported method of an actor has a valid signature
// and that the method table has no gaps beyond the send method.
func CheckActorExports(t *testing.T, act runtime.VMActor) {
	for i, m := range act.Exports() {
		if i == 0 { // Send is implicit.
			require.Nil(t, m, "send method must not be exported")
			continue
		}
		require.NotNil(t, m, "method %d is not exported", i)

		meth := reflect.ValueOf(m)
		mt := meth.Type()
		require.Equal(t, reflect.Func, mt.Kind(), "method %d is not a function", i)
		require.Equal(t, 2, mt.NumIn(), "method %d must take the runtime and one params value", i)
		require.Equal(t, typeOfRuntimeInterface, mt.In(0), "method %d first parameter must be the runtime", i)
		require.True(t, mt.In(1).Implements(typeOfCborUnmarshaler), "method %d params must be CBOR-unmarshalable", i)
		require.Equal(t, 1, mt.NumOut(), "method %d must return a single value", i)
		require.True(t, mt.Out(0).Implements(typeOfCborMarshaler), "method %d must return a CBOR-marshalable value", i)
	}
}
