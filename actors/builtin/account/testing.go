package account

import (
	addr "github.com/filecoin-project/go-address"

	"github.com/tokenvest/vesting-actors/actors/builtin"
)

type StateSummary struct {
	PubKeyAddr addr.Address
}

// Checks internal invariants of the account state held at idAddr.
// The burnt funds singleton is installed at genesis with its own ID address as key.
func CheckStateInvariants(st *State, idAddr addr.Address) (*StateSummary, *builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	if idAddr == builtin.BurntFundsActorAddr {
		acc.Require(st.Address == idAddr, "burnt funds account holds address %v", st.Address)
	} else {
		acc.Require(
			st.Address.Protocol() == addr.BLS || st.Address.Protocol() == addr.SECP256K1,
			"account key address %v must be BLS or SECP256K1 protocol", st.Address)
	}
	return &StateSummary{PubKeyAddr: st.Address}, acc, nil
}
