package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/vm"
)

// Sim drives a token ledger and a vesting engine with a grantor and a population of beneficiaries.
type Sim struct {
	Config        SimConfig
	Owner         addr.Address
	Token         addr.Address
	Vesting       addr.Address
	Grantor       *GrantorAgent
	Beneficiaries []*BeneficiaryAgent

	v             *vm.VM
	rnd           *rand.Rand
	callsByMethod map[abi.MethodNum]int
}

// VMState is the read-only view of the VM available to agents and return handlers.
type VMState interface {
	GetEpoch() abi.ChainEpoch
	GetState(a addr.Address, out cbor.Unmarshaler) error
	Store() adt.Store
}

type SimConfig struct {
	Seed             int64
	BeneficiaryCount int
	// Token supply minted to the owner, all of which the grantor may hand out.
	Supply abi.TokenAmount
	// Epochs the clock advances per tick.
	TickEpochs abi.ChainEpoch
	// Average grants issued per tick.
	GrantRate float64
	// Average claims per beneficiary per tick.
	ClaimRate float64
	MaxGrant  int64
}

type ReturnHandler func(v VMState, msg Message, ret cbor.Marshaler) error

type Message struct {
	From          addr.Address
	To            addr.Address
	Method        abi.MethodNum
	Params        cbor.Marshaler
	ReturnHandler ReturnHandler
}

// NewSim deploys the actors over store and creates the agents.
func NewSim(ctx context.Context, store adt.Store, config SimConfig) (*Sim, error) {
	if config.TickEpochs <= 0 {
		return nil, xerrors.Errorf("tick length %d must be positive", config.TickEpochs)
	}
	if config.MaxGrant <= 0 {
		return nil, xerrors.Errorf("max grant %d must be positive", config.MaxGrant)
	}
	v, err := vm.NewCustomStoreVMWithSingletons(ctx, store)
	if err != nil {
		return nil, err
	}
	rnd := rand.New(rand.NewSource(config.Seed))
	s := &Sim{Config: config, v: v, rnd: rnd, callsByMethod: map[abi.MethodNum]int{}}

	if s.Owner, err = s.createAccount("owner"); err != nil {
		return nil, err
	}
	if s.Token, err = v.DeployToken(s.Owner, config.Supply); err != nil {
		return nil, err
	}
	if s.Vesting, err = v.DeployVesting(s.Owner); err != nil {
		return nil, err
	}
	if err := s.apply(Message{From: s.Owner, To: s.Vesting, Method: builtin.MethodsVesting.Initialize, Params: &s.Token}); err != nil {
		return nil, err
	}
	if err := s.apply(Message{From: s.Owner, To: s.Token, Method: builtin.MethodsToken.Approve,
		Params: &token.ApproveParams{Spender: s.Vesting, Amount: config.Supply}}); err != nil {
		return nil, err
	}

	for i := 0; i < config.BeneficiaryCount; i++ {
		a, err := s.createAccount(fmt.Sprintf("beneficiary-%d", i))
		if err != nil {
			return nil, err
		}
		s.Beneficiaries = append(s.Beneficiaries, NewBeneficiaryAgent(a, s.Vesting, config.ClaimRate, rnd.Int63()))
	}
	s.Grantor = NewGrantorAgent(s.Owner, s.Vesting, config.Supply, s.Beneficiaries, config.GrantRate, config.MaxGrant, rnd)
	return s, nil
}

// Tick applies one round of agent messages in random order, then advances the clock.
// Every message is expected to succeed.
func (s *Sim) Tick() error {
	blockMessages, err := s.Grantor.Tick(s.v)
	if err != nil {
		return err
	}
	for _, b := range s.Beneficiaries {
		msgs, err := b.Tick(s.v)
		if err != nil {
			return err
		}
		blockMessages = append(blockMessages, msgs...)
	}

	s.rnd.Shuffle(len(blockMessages), func(i, j int) {
		blockMessages[i], blockMessages[j] = blockMessages[j], blockMessages[i]
	})
	for _, msg := range blockMessages {
		if err := s.apply(msg); err != nil {
			return err
		}
	}

	s.v.SetEpoch(s.v.GetEpoch() + s.Config.TickEpochs)
	return nil
}

// ClaimAll has every beneficiary with grants claim once at the current epoch.
func (s *Sim) ClaimAll() error {
	for _, b := range s.Beneficiaries {
		if len(b.Grants) == 0 {
			continue
		}
		if err := s.apply(b.Claim()); err != nil {
			return err
		}
	}
	return nil
}

// BalanceOf reads a token balance from the ledger.
func (s *Sim) BalanceOf(a addr.Address) (abi.TokenAmount, error) {
	var st token.State
	if err := s.v.GetState(s.Token, &st); err != nil {
		return big.Zero(), err
	}
	return st.BalanceOf(s.v.Store(), a)
}

// Calls counts applied messages by method number.
func (s *Sim) Calls() map[abi.MethodNum]int {
	return s.callsByMethod
}

func (s *Sim) GetVM() *vm.VM {
	return s.v
}

func (s *Sim) apply(msg Message) error {
	result, err := s.v.ApplyMessage(msg.From, msg.To, big.Zero(), msg.Method, msg.Params)
	if err != nil {
		return err
	}
	if result.Code != exitcode.Ok {
		return xerrors.Errorf("exitcode %d: method %d from %v to %v failed:\n%s", result.Code, msg.Method, msg.From, msg.To,
			strings.Join(result.Logs, "\n"))
	}
	s.callsByMethod[msg.Method]++
	if msg.ReturnHandler != nil {
		return msg.ReturnHandler(s.v, msg, result.Ret)
	}
	return nil
}

func (s *Sim) createAccount(name string) (addr.Address, error) {
	key, err := addr.NewSecp256k1Address([]byte("agent/" + name))
	if err != nil {
		return addr.Undef, err
	}
	return s.v.CreateAccount(key, big.Zero())
}
