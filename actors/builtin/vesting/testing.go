package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

type StateSummary struct {
	Owner          addr.Address
	Token          *addr.Address
	GrantCount     uint64
	SettledCount   uint64
	TotalGranted   abi.TokenAmount
	TotalCollected abi.TokenAmount
	// Outstanding custody per beneficiary.
	Outstanding map[addr.Address]abi.TokenAmount
}

// Checks internal invariants of vesting state.
func CheckStateInvariants(st *State, store adt.Store) (*StateSummary, *builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	summary := &StateSummary{
		Owner:          st.Owner,
		Token:          st.Token,
		TotalGranted:   big.Zero(),
		TotalCollected: big.Zero(),
		Outstanding:    make(map[addr.Address]abi.TokenAmount),
	}

	acc.Require(st.Owner.Protocol() == addr.ID, "owner %v is not an ID address", st.Owner)
	if st.Token != nil {
		acc.Require(st.Token.Protocol() == addr.ID, "token %v is not an ID address", *st.Token)
	} else {
		acc.Require(st.GrantCount == 0, "uninitialized engine holds %d grants", st.GrantCount)
	}

	if err := st.ForEachGrant(store, func(index uint64, grant *Grant, settled bool) error {
		prefix := acc.WithPrefix("grant %v/%d: ", grant.Beneficiary, index)
		prefix.Require(grant.Beneficiary.Protocol() == addr.ID, "beneficiary is not an ID address")
		prefix.Require(grant.TotalAmount.GreaterThan(big.Zero()), "total %v is not positive", grant.TotalAmount)
		prefix.Require(grant.CollectedAmount.GreaterThanEqual(big.Zero()), "collected %v is negative", grant.CollectedAmount)
		prefix.Require(grant.CollectedAmount.LessThanEqual(grant.TotalAmount), "collected %v exceeds total %v", grant.CollectedAmount, grant.TotalAmount)
		prefix.Require(settled == grant.IsSettled(), "settled flag %t but collected %v of %v", settled, grant.CollectedAmount, grant.TotalAmount)

		summary.GrantCount++
		if settled {
			summary.SettledCount++
		}
		summary.TotalGranted = big.Add(summary.TotalGranted, grant.TotalAmount)
		summary.TotalCollected = big.Add(summary.TotalCollected, grant.CollectedAmount)
		outstanding, ok := summary.Outstanding[grant.Beneficiary]
		if !ok {
			outstanding = big.Zero()
		}
		summary.Outstanding[grant.Beneficiary] = big.Add(outstanding, big.Sub(grant.TotalAmount, grant.CollectedAmount))
		return nil
	}); err != nil {
		return nil, nil, err
	}

	acc.Require(summary.GrantCount == st.GrantCount, "grant count %d != recorded %d", summary.GrantCount, st.GrantCount)
	acc.Require(summary.TotalGranted.Equals(st.TotalGranted), "sum of grant totals %v != recorded %v", summary.TotalGranted, st.TotalGranted)
	acc.Require(summary.TotalCollected.Equals(st.TotalCollected), "sum of collected %v != recorded %v", summary.TotalCollected, st.TotalCollected)
	return summary, acc, nil
}
