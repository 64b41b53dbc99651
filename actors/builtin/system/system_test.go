package system_test

import (
	"testing"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/system"
	"github.com/tokenvest/vesting-actors/support/mock"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, system.Actor{})
}

func TestSystemActor(t *testing.T) {
	actor := system.Actor{}

	t.Run("created by the system address", func(t *testing.T) {
		rt := mock.NewBuilder(builtin.SystemActorAddr).Build(t)
		rt.SetCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.Call(actor.Constructor, nil)
		rt.Verify()

		var st system.State
		rt.GetState(&st)
		require.Equal(t, system.State{}, st)
	})

	t.Run("rejects any other caller", func(t *testing.T) {
		rt := mock.NewBuilder(builtin.SystemActorAddr).Build(t)
		rt.SetCaller(tutil.NewIDAddr(t, 1000), builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(actor.Constructor, nil)
		})
		rt.Verify()
	})
}
