// Package report summarises the grant registry of a vesting engine at an epoch.
// Beneficiaries are loaded concurrently from a read-only view of the state.
package report

import (
	"context"
	"sort"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// DefaultParallelism bounds the number of beneficiaries loaded at once.
const DefaultParallelism = 8

type GrantLine struct {
	Index         uint64
	StartEpoch    abi.ChainEpoch
	FullyVestedAt abi.ChainEpoch
	Total         abi.TokenAmount
	Unlocked      abi.TokenAmount
	Collected     abi.TokenAmount
	Claimable     abi.TokenAmount
	Settled       bool
}

type Beneficiary struct {
	Address   addr.Address
	Grants    []GrantLine
	Total     abi.TokenAmount
	Unlocked  abi.TokenAmount
	Collected abi.TokenAmount
	Claimable abi.TokenAmount
}

type Report struct {
	Epoch          abi.ChainEpoch
	Owner          addr.Address
	Token          *addr.Address
	GrantCount     uint64
	TotalGranted   abi.TokenAmount
	TotalCollected abi.TokenAmount
	Outstanding    abi.TokenAmount
	// Ordered by address.
	Beneficiaries []Beneficiary
}

// Build evaluates every grant at epoch now. A parallelism below one uses DefaultParallelism.
// The store must be safe for concurrent reads.
func Build(ctx context.Context, store adt.Store, st *vesting.State, now abi.ChainEpoch, parallelism int) (*Report, error) {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}

	var beneficiaries []addr.Address
	if err := st.ForEachBeneficiary(store, func(a addr.Address) error {
		beneficiaries = append(beneficiaries, a)
		return nil
	}); err != nil {
		return nil, xerrors.Errorf("failed to list beneficiaries: %w", err)
	}
	sort.Slice(beneficiaries, func(i, j int) bool {
		return beneficiaries[i].String() < beneficiaries[j].String()
	})

	entries := make([]Beneficiary, len(beneficiaries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, a := range beneficiaries {
		i, a := i, a
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := loadBeneficiary(store, st, a, now)
			if err != nil {
				return xerrors.Errorf("failed to load grants of %v: %w", a, err)
			}
			entries[i] = *entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Epoch:          now,
		Owner:          st.Owner,
		Token:          st.Token,
		GrantCount:     st.GrantCount,
		TotalGranted:   st.TotalGranted,
		TotalCollected: st.TotalCollected,
		Outstanding:    st.Outstanding(),
		Beneficiaries:  entries,
	}, nil
}

func loadBeneficiary(store adt.Store, st *vesting.State, a addr.Address, now abi.ChainEpoch) (*Beneficiary, error) {
	count, err := st.BeneficiaryGrantCount(store, a)
	if err != nil {
		return nil, err
	}
	entry := &Beneficiary{
		Address:   a,
		Grants:    make([]GrantLine, 0, count),
		Total:     big.Zero(),
		Unlocked:  big.Zero(),
		Collected: big.Zero(),
		Claimable: big.Zero(),
	}
	for i := uint64(0); i < count; i++ {
		grant, found, err := st.GetGrant(store, a, i)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, xerrors.Errorf("grant %d missing below count %d", i, count)
		}
		line := GrantLine{
			Index:         i,
			StartEpoch:    grant.StartEpoch,
			FullyVestedAt: grant.StartEpoch + vesting.VestingDuration,
			Total:         grant.TotalAmount,
			Unlocked:      grant.UnlockedAt(now),
			Collected:     grant.CollectedAmount,
			Claimable:     grant.Deliverable(now),
			Settled:       grant.IsSettled(),
		}
		entry.Grants = append(entry.Grants, line)
		entry.Total = big.Add(entry.Total, line.Total)
		entry.Unlocked = big.Add(entry.Unlocked, line.Unlocked)
		entry.Collected = big.Add(entry.Collected, line.Collected)
		entry.Claimable = big.Add(entry.Claimable, line.Claimable)
	}
	return entry, nil
}

// Claimable is the total amount a claim at the report epoch would release.
func (r *Report) Claimable() abi.TokenAmount {
	total := big.Zero()
	for _, b := range r.Beneficiaries {
		total = big.Add(total, b.Claimable)
	}
	return total
}

// Find returns the entry for a beneficiary, if it holds any grant.
func (r *Report) Find(a addr.Address) (*Beneficiary, bool) {
	for i := range r.Beneficiaries {
		if r.Beneficiaries[i].Address == a {
			return &r.Beneficiaries[i], true
		}
	}
	return nil, false
}
