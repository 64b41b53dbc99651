package token

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	cid "github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// State is the fungible token ledger.
// All addresses held in state are ID addresses.
type State struct {
	Owner  addr.Address // May mint new tokens.
	Supply abi.TokenAmount

	Balances   cid.Cid // BalanceTable, HAMT[addr]TokenAmount
	Allowances cid.Cid // HAMT[allowanceKey]TokenAmount
}

// Key of an allowance entry: the owner address bytes followed by the spender address bytes.
// Both are ID addresses, whose varint encoding is self-delimiting.
type allowanceKey struct {
	owner   addr.Address
	spender addr.Address
}

func (k allowanceKey) Key() string {
	return string(k.owner.Bytes()) + string(k.spender.Bytes())
}

var _ abi.Keyer = allowanceKey{}

func ConstructState(store adt.Store, owner addr.Address) (*State, error) {
	emptyMap, err := adt.StoreEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	return &State{
		Owner:      owner,
		Supply:     big.Zero(),
		Balances:   emptyMap,
		Allowances: emptyMap,
	}, nil
}

// Credits newly created tokens to an account.
func (st *State) Mint(store adt.Store, to addr.Address, amount abi.TokenAmount) error {
	if amount.LessThan(big.Zero()) {
		return exitcode.ErrIllegalArgument.Wrapf("negative mint amount %v", amount)
	}
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return xerrors.Errorf("failed to load balances: %w", err)
	}
	if err := balances.Add(to, amount); err != nil {
		return xerrors.Errorf("failed to credit %v to %v: %w", amount, to, err)
	}
	if st.Balances, err = balances.Root(); err != nil {
		return xerrors.Errorf("failed to flush balances: %w", err)
	}
	st.Supply = big.Add(st.Supply, amount)
	return nil
}

// Moves tokens between accounts. Fails with ErrInsufficientFunds and no change if the sender's balance is short.
func (st *State) Transfer(store adt.Store, from, to addr.Address, amount abi.TokenAmount) error {
	if amount.LessThan(big.Zero()) {
		return exitcode.ErrIllegalArgument.Wrapf("negative transfer amount %v", amount)
	}
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return xerrors.Errorf("failed to load balances: %w", err)
	}
	if err := balances.MustSubtract(from, amount); err != nil {
		return exitcode.ErrInsufficientFunds.Wrapf("failed to debit %v from %v: %s", amount, from, err)
	}
	if err := balances.Add(to, amount); err != nil {
		return xerrors.Errorf("failed to credit %v to %v: %w", amount, to, err)
	}
	if st.Balances, err = balances.Root(); err != nil {
		return xerrors.Errorf("failed to flush balances: %w", err)
	}
	return nil
}

func (st *State) BalanceOf(store adt.Store, a addr.Address) (abi.TokenAmount, error) {
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load balances: %w", err)
	}
	return balances.Get(a)
}

// Sets the amount a spender may move out of the owner's balance, replacing any previous allowance.
func (st *State) Approve(store adt.Store, owner, spender addr.Address, amount abi.TokenAmount) error {
	if amount.LessThan(big.Zero()) {
		return exitcode.ErrIllegalArgument.Wrapf("negative allowance %v", amount)
	}
	allowances, err := adt.AsMap(store, st.Allowances)
	if err != nil {
		return xerrors.Errorf("failed to load allowances: %w", err)
	}
	key := allowanceKey{owner, spender}
	if amount.IsZero() {
		if _, err := allowances.TryDelete(key); err != nil {
			return xerrors.Errorf("failed to clear allowance: %w", err)
		}
	} else if err := allowances.Put(key, &amount); err != nil {
		return xerrors.Errorf("failed to put allowance: %w", err)
	}
	if st.Allowances, err = allowances.Root(); err != nil {
		return xerrors.Errorf("failed to flush allowances: %w", err)
	}
	return nil
}

func (st *State) Allowance(store adt.Store, owner, spender addr.Address) (abi.TokenAmount, error) {
	allowances, err := adt.AsMap(store, st.Allowances)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load allowances: %w", err)
	}
	var amount abi.TokenAmount
	found, err := allowances.Get(allowanceKey{owner, spender}, &amount)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to get allowance: %w", err)
	}
	if !found {
		return big.Zero(), nil
	}
	return amount, nil
}

// Moves tokens on behalf of the owner, consuming the spender's allowance.
func (st *State) TransferFrom(store adt.Store, spender, from, to addr.Address, amount abi.TokenAmount) error {
	allowed, err := st.Allowance(store, from, spender)
	if err != nil {
		return err
	}
	if allowed.LessThan(amount) {
		return exitcode.ErrInsufficientFunds.Wrapf("insufficient allowance %v for %v to spend %v from %v", allowed, spender, amount, from)
	}
	if err := st.Approve(store, from, spender, big.Sub(allowed, amount)); err != nil {
		return err
	}
	return st.Transfer(store, from, to, amount)
}
