//go:build !testground
// +build !testground

package vesting

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/tokenvest/vesting-actors/actors/builtin"
)

// The window over which every grant unlocks linearly from its start epoch.
const VestingDuration = abi.ChainEpoch(30 * builtin.EpochsInDay) // 30 days
