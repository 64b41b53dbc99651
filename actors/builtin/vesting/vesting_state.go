package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-bitfield"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	cid "github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// State of the vesting engine.
// All addresses held in state are ID addresses.
type State struct {
	// The principal allowed to bind the ledger and create grants.
	Owner addr.Address
	// The token ledger holding the engine's custody. Nil until initialized.
	Token *addr.Address
	// HAMT[addr]GrantSet, keyed by beneficiary.
	Grants cid.Cid
	// Number of grants ever created, across all beneficiaries.
	GrantCount uint64
	// Sum of TotalAmount over all grants.
	TotalGranted abi.TokenAmount
	// Sum of CollectedAmount over all grants.
	TotalCollected abi.TokenAmount
}

// Grant is a single allotment to a beneficiary, unlocking linearly from StartEpoch.
// Only CollectedAmount changes after creation.
type Grant struct {
	Beneficiary     addr.Address
	TotalAmount     abi.TokenAmount
	StartEpoch      abi.ChainEpoch
	CollectedAmount abi.TokenAmount
}

// GrantSet is the sequence of grants held by one beneficiary.
type GrantSet struct {
	// AMT[uint64]Grant, indexed by creation order. Grants are never removed.
	Grants cid.Cid
	// Indexes of grants whose collected amount has reached the total.
	Settled bitfield.BitField
}

// Collection records tokens released from a single grant by a claim.
type Collection struct {
	Index  uint64
	Amount abi.TokenAmount
}

func ConstructState(store adt.Store, owner addr.Address) (*State, error) {
	emptyMap, err := adt.StoreEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	return &State{
		Owner:          owner,
		Token:          nil,
		Grants:         emptyMap,
		GrantCount:     0,
		TotalGranted:   big.Zero(),
		TotalCollected: big.Zero(),
	}, nil
}

func (st *State) IsInitialized() bool {
	return st.Token != nil
}

// Outstanding is the amount the engine must hold in custody to honour all grants.
func (st *State) Outstanding() abi.TokenAmount {
	return big.Sub(st.TotalGranted, st.TotalCollected)
}

// UnlockedAt is the amount of the grant released at epoch now.
func (g *Grant) UnlockedAt(now abi.ChainEpoch) abi.TokenAmount {
	return UnlockedAmount(g.TotalAmount, g.StartEpoch, VestingDuration, now)
}

// Deliverable is the unlocked amount not yet collected.
func (g *Grant) Deliverable(now abi.ChainEpoch) abi.TokenAmount {
	return big.Max(big.Sub(g.UnlockedAt(now), g.CollectedAmount), big.Zero())
}

func (g *Grant) IsSettled() bool {
	return g.CollectedAmount.GreaterThanEqual(g.TotalAmount)
}

// Appends a new grant to the beneficiary's sequence, returning its index.
func (st *State) AddGrant(store adt.Store, beneficiary addr.Address, amount abi.TokenAmount, now abi.ChainEpoch) (uint64, error) {
	if amount.LessThanEqual(big.Zero()) {
		return 0, exitcode.ErrIllegalArgument.Wrapf("grant amount %v must be positive", amount)
	}

	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return 0, xerrors.Errorf("failed to load grants: %w", err)
	}
	set, arr, err := loadOrCreateGrantSet(store, grants, beneficiary)
	if err != nil {
		return 0, err
	}

	index := arr.Length()
	grant := Grant{
		Beneficiary:     beneficiary,
		TotalAmount:     amount,
		StartEpoch:      now,
		CollectedAmount: big.Zero(),
	}
	if err := arr.AppendContinuous(&grant); err != nil {
		return 0, xerrors.Errorf("failed to append grant for %v: %w", beneficiary, err)
	}
	if err := storeGrantSet(grants, beneficiary, set, arr); err != nil {
		return 0, err
	}
	if st.Grants, err = grants.Root(); err != nil {
		return 0, xerrors.Errorf("failed to flush grants: %w", err)
	}

	st.GrantCount++
	st.TotalGranted = big.Add(st.TotalGranted, amount)
	return index, nil
}

// Loads a grant. Returns false if the beneficiary has no grant at the index.
func (st *State) GetGrant(store adt.Store, beneficiary addr.Address, index uint64) (*Grant, bool, error) {
	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load grants: %w", err)
	}
	var set GrantSet
	found, err := grants.Get(abi.AddrKey(beneficiary), &set)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load grant set for %v: %w", beneficiary, err)
	}
	if !found {
		return nil, false, nil
	}
	arr, err := adt.AsArray(store, set.Grants)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load grant array for %v: %w", beneficiary, err)
	}
	var grant Grant
	found, err = arr.Get(index, &grant)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load grant %d for %v: %w", index, beneficiary, err)
	}
	if !found {
		return nil, false, nil
	}
	return &grant, true, nil
}

// Number of grants ever created for a beneficiary.
func (st *State) BeneficiaryGrantCount(store adt.Store, beneficiary addr.Address) (uint64, error) {
	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return 0, xerrors.Errorf("failed to load grants: %w", err)
	}
	var set GrantSet
	found, err := grants.Get(abi.AddrKey(beneficiary), &set)
	if err != nil {
		return 0, xerrors.Errorf("failed to load grant set for %v: %w", beneficiary, err)
	}
	if !found {
		return 0, nil
	}
	arr, err := adt.AsArray(store, set.Grants)
	if err != nil {
		return 0, xerrors.Errorf("failed to load grant array for %v: %w", beneficiary, err)
	}
	return arr.Length(), nil
}

// Records collection of the deliverable amount of every unsettled grant of the beneficiary.
// Returns one entry per grant with a nonzero deliverable, in index order.
// A beneficiary without grants collects nothing.
func (st *State) CollectAll(store adt.Store, beneficiary addr.Address, now abi.ChainEpoch) ([]Collection, error) {
	return st.collect(store, beneficiary, now, func(uint64) bool { return true })
}

// Records collection of the deliverable amount of a single grant.
// Fails with ErrGrantNotFound if the grant does not exist.
func (st *State) CollectOne(store adt.Store, beneficiary addr.Address, index uint64, now abi.ChainEpoch) (abi.TokenAmount, error) {
	count, err := st.BeneficiaryGrantCount(store, beneficiary)
	if err != nil {
		return big.Zero(), err
	}
	if index >= count {
		return big.Zero(), ErrGrantNotFound.Wrapf("no grant %d for %v", index, beneficiary)
	}
	collections, err := st.collect(store, beneficiary, now, func(i uint64) bool { return i == index })
	if err != nil {
		return big.Zero(), err
	}
	if len(collections) == 0 {
		return big.Zero(), nil
	}
	return collections[0].Amount, nil
}

func (st *State) collect(store adt.Store, beneficiary addr.Address, now abi.ChainEpoch, include func(uint64) bool) ([]Collection, error) {
	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return nil, xerrors.Errorf("failed to load grants: %w", err)
	}
	var set GrantSet
	found, err := grants.Get(abi.AddrKey(beneficiary), &set)
	if err != nil {
		return nil, xerrors.Errorf("failed to load grant set for %v: %w", beneficiary, err)
	}
	if !found {
		return nil, nil
	}
	arr, err := adt.AsArray(store, set.Grants)
	if err != nil {
		return nil, xerrors.Errorf("failed to load grant array for %v: %w", beneficiary, err)
	}

	// Gather first, the array may not be mutated during iteration.
	type update struct {
		index uint64
		grant Grant
	}
	var updates []update
	var grant Grant
	err = arr.ForEach(&grant, func(i int64) error {
		idx := uint64(i)
		if !include(idx) {
			return nil
		}
		settled, err := set.Settled.IsSet(idx)
		if err != nil {
			return xerrors.Errorf("failed to check settled grant %d: %w", idx, err)
		}
		if settled {
			return nil
		}
		if grant.Deliverable(now).GreaterThan(big.Zero()) {
			updates = append(updates, update{idx, grant})
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to iterate grants for %v: %w", beneficiary, err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	var collections []Collection
	var newlySettled []uint64
	for _, u := range updates {
		g := u.grant
		amount := g.Deliverable(now)
		g.CollectedAmount = big.Add(g.CollectedAmount, amount)
		if g.IsSettled() {
			newlySettled = append(newlySettled, u.index)
		}
		if err := arr.Set(u.index, &g); err != nil {
			return nil, xerrors.Errorf("failed to update grant %d for %v: %w", u.index, beneficiary, err)
		}
		collections = append(collections, Collection{Index: u.index, Amount: amount})
		st.TotalCollected = big.Add(st.TotalCollected, amount)
	}

	if len(newlySettled) > 0 {
		if set.Settled, err = bitfield.MergeBitFields(set.Settled, bitfield.NewFromSet(newlySettled)); err != nil {
			return nil, xerrors.Errorf("failed to mark grants settled: %w", err)
		}
	}
	if err := storeGrantSet(grants, beneficiary, &set, arr); err != nil {
		return nil, err
	}
	if st.Grants, err = grants.Root(); err != nil {
		return nil, xerrors.Errorf("failed to flush grants: %w", err)
	}
	return collections, nil
}

// Visits every grant of every beneficiary. Order across beneficiaries is unspecified,
// grants of one beneficiary are visited in index order.
func (st *State) ForEachGrant(store adt.Store, fn func(index uint64, grant *Grant, settled bool) error) error {
	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return xerrors.Errorf("failed to load grants: %w", err)
	}
	var set GrantSet
	return grants.ForEach(&set, func(key string) error {
		arr, err := adt.AsArray(store, set.Grants)
		if err != nil {
			return xerrors.Errorf("failed to load grant array for %x: %w", key, err)
		}
		settled := set.Settled
		var grant Grant
		return arr.ForEach(&grant, func(i int64) error {
			isSettled, err := settled.IsSet(uint64(i))
			if err != nil {
				return err
			}
			g := grant
			return fn(uint64(i), &g, isSettled)
		})
	})
}

// Visits each beneficiary holding at least one grant, in unspecified order.
func (st *State) ForEachBeneficiary(store adt.Store, fn func(beneficiary addr.Address) error) error {
	grants, err := adt.AsMap(store, st.Grants)
	if err != nil {
		return xerrors.Errorf("failed to load grants: %w", err)
	}
	return grants.ForEach(nil, func(key string) error {
		beneficiary, err := addr.NewFromBytes([]byte(key))
		if err != nil {
			return xerrors.Errorf("invalid beneficiary key %x: %w", key, err)
		}
		return fn(beneficiary)
	})
}

func loadOrCreateGrantSet(store adt.Store, grants *adt.Map, beneficiary addr.Address) (*GrantSet, *adt.Array, error) {
	var set GrantSet
	found, err := grants.Get(abi.AddrKey(beneficiary), &set)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to load grant set for %v: %w", beneficiary, err)
	}
	if !found {
		arr, err := adt.MakeEmptyArray(store)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to create grant array: %w", err)
		}
		return &GrantSet{Settled: bitfield.New()}, arr, nil
	}
	arr, err := adt.AsArray(store, set.Grants)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to load grant array for %v: %w", beneficiary, err)
	}
	return &set, arr, nil
}

func storeGrantSet(grants *adt.Map, beneficiary addr.Address, set *GrantSet, arr *adt.Array) error {
	root, err := arr.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush grant array for %v: %w", beneficiary, err)
	}
	set.Grants = root
	if err := grants.Put(abi.AddrKey(beneficiary), set); err != nil {
		return xerrors.Errorf("failed to store grant set for %v: %w", beneficiary, err)
	}
	return nil
}
