package indexer

import (
	"sort"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// GrantRow is the indexed form of one grant, evaluated at IndexedEpoch.
type GrantRow struct {
	Beneficiary     string
	Index           uint64
	TotalAmount     abi.TokenAmount
	StartEpoch      abi.ChainEpoch
	CollectedAmount abi.TokenAmount
	UnlockedAmount  abi.TokenAmount
	IndexedEpoch    abi.ChainEpoch
}

// Snapshot flattens the grant registry of a vesting engine into rows ordered by beneficiary and index.
func Snapshot(store adt.Store, st *vesting.State, epoch abi.ChainEpoch) ([]GrantRow, error) {
	var rows []GrantRow
	err := st.ForEachGrant(store, func(index uint64, grant *vesting.Grant, _ bool) error {
		rows = append(rows, GrantRow{
			Beneficiary:     grant.Beneficiary.String(),
			Index:           index,
			TotalAmount:     grant.TotalAmount,
			StartEpoch:      grant.StartEpoch,
			CollectedAmount: grant.CollectedAmount,
			UnlockedAmount:  grant.UnlockedAt(epoch),
			IndexedEpoch:    epoch,
		})
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to walk grants: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Beneficiary != rows[j].Beneficiary {
			return rows[i].Beneficiary < rows[j].Beneficiary
		}
		return rows[i].Index < rows[j].Index
	})
	return rows, nil
}
