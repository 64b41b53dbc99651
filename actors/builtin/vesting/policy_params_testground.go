//go:build testground
// +build testground

package vesting

import (
	"github.com/filecoin-project/go-state-types/abi"
)

// The window over which every grant unlocks linearly from its start epoch.
const VestingDuration = abi.ChainEpoch(30 * 60) // 15 hours instead of 30 days
