package builtin_test

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"

	"github.com/tokenvest/vesting-actors/actors/builtin"
)

func TestActorNames(t *testing.T) {
	assert.Equal(t, "tokenvest/1/token", builtin.ActorNameByCode(builtin.TokenActorCodeID))
	assert.Equal(t, "tokenvest/1/vesting", builtin.ActorNameByCode(builtin.VestingActorCodeID))
	assert.Equal(t, "<undefined>", builtin.ActorNameByCode(cid.Undef))

	assert.True(t, builtin.IsBuiltinActor(builtin.AccountActorCodeID))
	assert.True(t, builtin.IsPrincipal(builtin.AccountActorCodeID))
	assert.False(t, builtin.IsPrincipal(builtin.VestingActorCodeID))
}

func TestMessageAccumulator(t *testing.T) {
	acc := &builtin.MessageAccumulator{}
	assert.True(t, acc.IsEmpty())

	acc.Require(true, "never added")
	acc.Require(false, "grant %d collected too much", 3)
	other := &builtin.MessageAccumulator{}
	other.Addf("token %s", "insolvent")
	acc.AddAll(other)

	assert.False(t, acc.IsEmpty())
	assert.Equal(t, []string{"grant 3 collected too much", "token insolvent"}, acc.Messages())
}

func TestMessageAccumulatorPrefix(t *testing.T) {
	acc := &builtin.MessageAccumulator{}
	grant := acc.WithPrefix("grant %d: ", 7)
	grant.Require(false, "collected exceeds total")
	grant.WithPrefix("settled ").Add("flag mismatch")
	acc.Add("top")

	assert.Equal(t, []string{"grant 7: collected exceeds total", "grant 7: settled flag mismatch", "top"}, acc.Messages())
}
