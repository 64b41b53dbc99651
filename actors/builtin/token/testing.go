package token

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

type StateSummary struct {
	Supply       abi.TokenAmount
	Balances     map[addr.Address]abi.TokenAmount
	AllowanceSum abi.TokenAmount
}

// Checks internal invariants of token state.
func CheckStateInvariants(st *State, store adt.Store) (*StateSummary, *builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	summary := &StateSummary{
		Supply:       st.Supply,
		Balances:     make(map[addr.Address]abi.TokenAmount),
		AllowanceSum: big.Zero(),
	}

	acc.Require(st.Owner.Protocol() == addr.ID, "owner %v is not an ID address", st.Owner)
	acc.Require(!st.Supply.LessThan(big.Zero()), "supply %v is negative", st.Supply)

	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return nil, nil, err
	}
	balanceSum := big.Zero()
	if err := balances.ForEach(func(key addr.Address, balance abi.TokenAmount) error {
		acc.Require(key.Protocol() == addr.ID, "balance key %v is not an ID address", key)
		acc.Require(balance.GreaterThan(big.Zero()), "balance of %v is not positive: %v", key, balance)
		summary.Balances[key] = balance
		balanceSum = big.Add(balanceSum, balance)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	acc.Require(balanceSum.Equals(st.Supply), "sum of balances %v != supply %v", balanceSum, st.Supply)

	allowances, err := adt.AsMap(store, st.Allowances)
	if err != nil {
		return nil, nil, err
	}
	var allowance abi.TokenAmount
	if err := allowances.ForEach(&allowance, func(key string) error {
		acc.Require(allowance.GreaterThan(big.Zero()), "allowance %x is not positive: %v", key, allowance)
		summary.AllowanceSum = big.Add(summary.AllowanceSum, allowance)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	return summary, acc, nil
}
