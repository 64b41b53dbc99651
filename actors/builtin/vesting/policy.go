package vesting

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// UnlockedAmount is the portion of total released at epoch now by a grant that started at start and
// unlocks linearly over duration. The result is truncated toward zero and clamped to total.
func UnlockedAmount(total abi.TokenAmount, start, duration, now abi.ChainEpoch) abi.TokenAmount {
	if now <= start {
		return big.Zero()
	}
	elapsed := now - start
	if elapsed >= duration {
		return total
	}
	return big.Div(big.Mul(total, big.NewInt(int64(elapsed))), big.NewInt(int64(duration)))
}
