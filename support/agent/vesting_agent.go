package agent

import (
	"math/rand"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
)

// GrantorAgent issues grants from the engine owner to random beneficiaries until its budget runs out.
// The owner approves the engine for the whole budget up front.
type GrantorAgent struct {
	Owner   addr.Address
	Vesting addr.Address
	// Remaining budget, reduced as grant messages are emitted.
	Remaining abi.TokenAmount
	Granted   abi.TokenAmount

	beneficiaries []*BeneficiaryAgent
	maxGrant      int64
	events        *RateIterator
	rnd           *rand.Rand
}

func NewGrantorAgent(owner, vestingAddr addr.Address, budget abi.TokenAmount, beneficiaries []*BeneficiaryAgent,
	rate float64, maxGrant int64, rnd *rand.Rand) *GrantorAgent {
	return &GrantorAgent{
		Owner:         owner,
		Vesting:       vestingAddr,
		Remaining:     budget,
		Granted:       big.Zero(),
		beneficiaries: beneficiaries,
		maxGrant:      maxGrant,
		events:        NewRateIterator(rate, rnd.Int63()),
		rnd:           rnd,
	}
}

func (ga *GrantorAgent) Tick(_ VMState) ([]Message, error) {
	var msgs []Message
	err := ga.events.Tick(func() error {
		if len(ga.beneficiaries) == 0 || ga.Remaining.LessThanEqual(big.Zero()) {
			return nil
		}
		amount := big.NewInt(1 + ga.rnd.Int63n(ga.maxGrant))
		amount = big.Min(amount, ga.Remaining)
		ga.Remaining = big.Sub(ga.Remaining, amount)

		beneficiary := ga.beneficiaries[ga.rnd.Intn(len(ga.beneficiaries))]
		msgs = append(msgs, ga.createGrant(beneficiary, amount))
		return nil
	})
	return msgs, err
}

func (ga *GrantorAgent) createGrant(beneficiary *BeneficiaryAgent, amount abi.TokenAmount) Message {
	return Message{
		From:   ga.Owner,
		To:     ga.Vesting,
		Method: builtin.MethodsVesting.CreateGrant,
		Params: &vesting.CreateGrantParams{Beneficiary: beneficiary.Address, Amount: amount},
		ReturnHandler: func(_ VMState, _ Message, ret cbor.Marshaler) error {
			createRet, ok := ret.(*vesting.CreateGrantReturn)
			if !ok {
				return xerrors.Errorf("create grant return has wrong type: %v", ret)
			}
			if createRet.Index != uint64(len(beneficiary.Grants)) {
				return xerrors.Errorf("grant index %d for %v, expected %d", createRet.Index, beneficiary.Address, len(beneficiary.Grants))
			}
			beneficiary.Grants = append(beneficiary.Grants, amount)
			ga.Granted = big.Add(ga.Granted, amount)
			return nil
		},
	}
}

// BeneficiaryAgent claims from its grants at random times.
type BeneficiaryAgent struct {
	Address addr.Address
	Vesting addr.Address
	// Amounts of the grants received, by index.
	Grants  []abi.TokenAmount
	Claimed abi.TokenAmount
	Claims  int

	events *RateIterator
}

func NewBeneficiaryAgent(address, vestingAddr addr.Address, claimRate float64, seed int64) *BeneficiaryAgent {
	return &BeneficiaryAgent{
		Address: address,
		Vesting: vestingAddr,
		Claimed: big.Zero(),
		events:  NewRateIterator(claimRate, seed),
	}
}

func (ba *BeneficiaryAgent) Tick(_ VMState) ([]Message, error) {
	var msgs []Message
	err := ba.events.Tick(func() error {
		// At most one claim per tick, a second one in the same epoch would release nothing.
		if len(msgs) == 0 && len(ba.Grants) > 0 {
			msgs = append(msgs, ba.Claim())
		}
		return nil
	})
	return msgs, err
}

// Claim builds a claim of everything deliverable across the agent's grants.
func (ba *BeneficiaryAgent) Claim() Message {
	return Message{
		From:   ba.Address,
		To:     ba.Vesting,
		Method: builtin.MethodsVesting.Claim,
		ReturnHandler: func(_ VMState, _ Message, ret cbor.Marshaler) error {
			claimRet, ok := ret.(*vesting.ClaimReturn)
			if !ok {
				return xerrors.Errorf("claim return has wrong type: %v", ret)
			}
			ba.Claimed = big.Add(ba.Claimed, claimRet.Amount)
			ba.Claims++
			return nil
		},
	}
}

// Total of all grants received.
func (ba *BeneficiaryAgent) Granted() abi.TokenAmount {
	total := big.Zero()
	for _, g := range ba.Grants {
		total = big.Add(total, g)
	}
	return total
}
