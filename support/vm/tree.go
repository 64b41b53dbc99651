package vm

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// Actor is the state tree entry of a single actor.
type Actor struct {
	Code       cid.Cid
	Head       cid.Cid
	CallSeqNum uint64
	Balance    abi.TokenAmount
}

// Roots identifies a committed state tree.
type Roots struct {
	// HAMT[ID address]Actor
	Actors cid.Cid
	// HAMT[key address]ActorID
	Addresses cid.Cid
	NextID    uint64
}

// A working copy of the state tree.
// Not safe for concurrent use; the VM hands each message or query its own copy.
type tree struct {
	store     adt.Store
	actors    *adt.Map
	addresses *adt.Map
	nextID    uint64
}

func emptyTree(store adt.Store) (*tree, error) {
	actors, err := adt.MakeEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create actors map: %w", err)
	}
	addresses, err := adt.MakeEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create addresses map: %w", err)
	}
	return &tree{store: store, actors: actors, addresses: addresses, nextID: builtin.FirstNonSingletonActorId}, nil
}

func loadTree(store adt.Store, roots Roots) (*tree, error) {
	actors, err := adt.AsMap(store, roots.Actors)
	if err != nil {
		return nil, xerrors.Errorf("failed to load actors %v: %w", roots.Actors, err)
	}
	addresses, err := adt.AsMap(store, roots.Addresses)
	if err != nil {
		return nil, xerrors.Errorf("failed to load addresses %v: %w", roots.Addresses, err)
	}
	return &tree{store: store, actors: actors, addresses: addresses, nextID: roots.NextID}, nil
}

func (t *tree) flush() (Roots, error) {
	actors, err := t.actors.Root()
	if err != nil {
		return Roots{}, xerrors.Errorf("failed to flush actors: %w", err)
	}
	addresses, err := t.addresses.Root()
	if err != nil {
		return Roots{}, xerrors.Errorf("failed to flush addresses: %w", err)
	}
	return Roots{Actors: actors, Addresses: addresses, NextID: t.nextID}, nil
}

// Resolves any address to its ID address. ID addresses are returned as-is, whether or not an actor exists.
func (t *tree) resolve(a addr.Address) (addr.Address, bool, error) {
	if a.Protocol() == addr.ID {
		return a, true, nil
	}
	var id cbg.CborInt
	found, err := t.addresses.Get(abi.AddrKey(a), &id)
	if err != nil {
		return addr.Undef, false, xerrors.Errorf("failed to resolve %v: %w", a, err)
	}
	if !found {
		return addr.Undef, false, nil
	}
	idAddr, err := addr.NewIDAddress(uint64(id))
	if err != nil {
		return addr.Undef, false, err
	}
	return idAddr, true, nil
}

// Allocates a fresh ID address, mapping the key address to it if one is given.
func (t *tree) allocate(key addr.Address) (addr.Address, error) {
	idAddr, err := addr.NewIDAddress(t.nextID)
	if err != nil {
		return addr.Undef, err
	}
	if key != addr.Undef {
		if _, found, err := t.resolve(key); err != nil {
			return addr.Undef, err
		} else if found {
			return addr.Undef, xerrors.Errorf("address %v already mapped", key)
		}
		id := cbg.CborInt(t.nextID)
		if err := t.addresses.Put(abi.AddrKey(key), &id); err != nil {
			return addr.Undef, xerrors.Errorf("failed to map %v: %w", key, err)
		}
	}
	t.nextID++
	return idAddr, nil
}

func (t *tree) getActor(a addr.Address) (*Actor, bool, error) {
	idAddr, found, err := t.resolve(a)
	if err != nil || !found {
		return nil, false, err
	}
	var act Actor
	found, err = t.actors.Get(abi.AddrKey(idAddr), &act)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load actor %v: %w", idAddr, err)
	}
	if !found {
		return nil, false, nil
	}
	return &act, true, nil
}

// Sets the actor at an ID address, whether or not it previously existed.
func (t *tree) setActor(idAddr addr.Address, act *Actor) error {
	if idAddr.Protocol() != addr.ID {
		return xerrors.Errorf("actor address %v is not an ID address", idAddr)
	}
	if err := t.actors.Put(abi.AddrKey(idAddr), act); err != nil {
		return xerrors.Errorf("failed to store actor %v: %w", idAddr, err)
	}
	return nil
}

// Moves value between two existing actors.
func (t *tree) transfer(from, to addr.Address, amount abi.TokenAmount) error {
	if amount.LessThan(big.Zero()) {
		return xerrors.Errorf("negative transfer %v", amount)
	}
	if amount.IsZero() || from == to {
		return nil
	}
	fromActor, found, err := t.getActor(from)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("debit actor %v not found", from)
	}
	if fromActor.Balance.LessThan(amount) {
		return xerrors.Errorf("insufficient balance %v for transfer of %v from %v", fromActor.Balance, amount, from)
	}
	toActor, found, err := t.getActor(to)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("credit actor %v not found", to)
	}
	fromActor.Balance = big.Sub(fromActor.Balance, amount)
	toActor.Balance = big.Add(toActor.Balance, amount)
	if err := t.setActor(from, fromActor); err != nil {
		return err
	}
	return t.setActor(to, toActor)
}
