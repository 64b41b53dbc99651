package states

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/account"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// Actor is the part of a state tree entry the checks need.
type Actor struct {
	Code    cid.Cid
	Head    cid.Cid
	Balance abi.TokenAmount
}

// Tree is a state tree whose actors can be enumerated by ID address.
type Tree interface {
	Store() adt.Store
	ForEachActor(fn func(key addr.Address, actor *Actor) error) error
}

// Within this code, Go errors are not expected, but are often converted to messages so that execution
// can continue to find more errors rather than fail with no insight.
// Only errors that are particularly troublesome to recover from should propagate as Go errors.
func CheckStateInvariants(tree Tree) (*builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	store := tree.Store()
	actorCodes := make(map[addr.Address]cid.Cid)
	tokenSummaries := make(map[addr.Address]*token.StateSummary)
	vestingSummaries := make(map[addr.Address]*vesting.StateSummary)

	if err := tree.ForEachActor(func(key addr.Address, actor *Actor) error {
		acc := acc.WithPrefix("%v ", key) // Intentional shadow
		if key.Protocol() != addr.ID {
			acc.Addf("unexpected address protocol in state tree root: %v", key)
		}
		acc.Require(!actor.Balance.LessThan(big.Zero()), "negative balance %v", actor.Balance)
		actorCodes[key] = actor.Code

		switch actor.Code {
		case builtin.SystemActorCodeID:

		case builtin.AccountActorCodeID:
			var st account.State
			if err := store.Get(store.Context(), actor.Head, &st); err != nil {
				return err
			}
			if _, msgs, err := account.CheckStateInvariants(&st, key); err != nil {
				return err
			} else {
				acc.WithPrefix("account: ").AddAll(msgs)
			}
		case builtin.TokenActorCodeID:
			var st token.State
			if err := store.Get(store.Context(), actor.Head, &st); err != nil {
				return err
			}
			if summary, msgs, err := token.CheckStateInvariants(&st, store); err != nil {
				return err
			} else {
				acc.WithPrefix("token: ").AddAll(msgs)
				tokenSummaries[key] = summary
			}
		case builtin.VestingActorCodeID:
			var st vesting.State
			if err := store.Get(store.Context(), actor.Head, &st); err != nil {
				return err
			}
			if summary, msgs, err := vesting.CheckStateInvariants(&st, store); err != nil {
				return err
			} else {
				acc.WithPrefix("vesting: ").AddAll(msgs)
				vestingSummaries[key] = summary
			}
		default:
			acc.Addf("unexpected actor code CID %v", actor.Code)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	CheckVestingAgainstLedgers(acc, actorCodes, vestingSummaries, tokenSummaries)
	return acc, nil
}

// Checks that every engine is owned by an existing actor, is bound to a token ledger,
// and holds at least its outstanding grants in that ledger.
func CheckVestingAgainstLedgers(acc *builtin.MessageAccumulator, actorCodes map[addr.Address]cid.Cid,
	vestingSummaries map[addr.Address]*vesting.StateSummary, tokenSummaries map[addr.Address]*token.StateSummary) {
	for engine, summary := range vestingSummaries { // nolint:nomaprange
		acc := acc.WithPrefix("vesting %v: ", engine) // Intentional shadow
		_, found := actorCodes[summary.Owner]
		acc.Require(found, "owner %v does not exist", summary.Owner)

		if summary.Token == nil {
			continue
		}
		ledger, found := tokenSummaries[*summary.Token]
		if !found {
			acc.Addf("bound to %v which is not a token ledger", *summary.Token)
			continue
		}
		custody, found := ledger.Balances[engine]
		if !found {
			custody = big.Zero()
		}
		outstanding := big.Sub(summary.TotalGranted, summary.TotalCollected)
		acc.Require(custody.GreaterThanEqual(outstanding), "custody %v below outstanding grants %v", custody, outstanding)
	}
}
