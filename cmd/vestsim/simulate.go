package main

import (
	"bytes"
	"context"
	"fmt"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	log "github.com/sirupsen/logrus"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/support/indexer"
	"github.com/tokenvest/vesting-actors/support/report"
	"github.com/tokenvest/vesting-actors/support/vm"
)

// StepOutcome is the record of one executed scenario step.
type StepOutcome struct {
	Day         int64
	Epoch       abi.ChainEpoch
	Action      Action
	Beneficiary string
	Amount      abi.TokenAmount
	Code        exitcode.ExitCode
	MessageID   string
	Detail      string
}

type Result struct {
	Epoch    abi.ChainEpoch
	Steps    []StepOutcome
	Balances map[string]abi.TokenAmount
	Custody  abi.TokenAmount
	Report   *report.Report
	// Names of accounts by ID address, for rendering the report.
	Names    map[addr.Address]string
	IndexRun *indexer.Run
}

// Simulator drives a scenario through a VM holding one token ledger and one vesting engine.
type Simulator struct {
	vm       *vm.VM
	log      *log.Entry
	scenario *Scenario
	accounts map[string]addr.Address
	names    map[addr.Address]string
	owner    addr.Address
	token    addr.Address
	vesting  addr.Address
}

// NewSimulator deploys the actors at day zero: an owner funded with the scenario supply,
// a token ledger, and an engine bound to it.
func NewSimulator(ctx context.Context, scenario *Scenario, logger *log.Entry) (*Simulator, error) {
	v, err := vm.NewVMWithSingletons(ctx)
	if err != nil {
		return nil, err
	}
	sim := &Simulator{
		vm:       v,
		log:      logger,
		scenario: scenario,
		accounts: map[string]addr.Address{},
		names:    map[addr.Address]string{},
	}
	for _, name := range scenario.Names() {
		key, err := keyAddress(name)
		if err != nil {
			return nil, err
		}
		id, err := v.CreateAccount(key, big.Zero())
		if err != nil {
			return nil, fmt.Errorf("failed to create account %s: %w", name, err)
		}
		sim.accounts[name] = id
		sim.names[id] = name
	}
	sim.owner = sim.accounts[scenario.Owner]

	supply, err := parseAmount(scenario.Supply)
	if err != nil {
		return nil, err
	}
	if sim.token, err = v.DeployToken(sim.owner, supply); err != nil {
		return nil, fmt.Errorf("failed to deploy token ledger: %w", err)
	}
	if sim.vesting, err = v.DeployVesting(sim.owner); err != nil {
		return nil, fmt.Errorf("failed to deploy vesting engine: %w", err)
	}
	sim.names[sim.vesting] = "vesting"
	if _, err := sim.apply(sim.owner, sim.vesting, builtin.MethodsVesting.Initialize, &sim.token); err != nil {
		return nil, err
	}
	sim.log.WithFields(log.Fields{"owner": sim.owner, "token": sim.token, "vesting": sim.vesting}).Info("deployed actors")
	return sim, nil
}

// Run executes every step in order, then evaluates the final state.
// Failed messages are recorded in the step outcome and do not stop the run.
func (s *Simulator) Run(ctx context.Context, parallelism int) (*Result, error) {
	result := &Result{Names: s.names}
	for i, step := range s.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.vm.SetEpoch(abi.ChainEpoch(step.AtDay * builtin.EpochsInDay))
		outcome, err := s.execute(step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		entry := s.log.WithFields(log.Fields{"day": step.AtDay, "action": step.Action, "beneficiary": step.Beneficiary})
		if outcome.Code.IsSuccess() {
			entry.Info(outcome.Detail)
		} else {
			entry.WithField("exit_code", outcome.Code).Warn(outcome.Detail)
		}
		result.Steps = append(result.Steps, *outcome)
	}

	result.Epoch = s.vm.GetEpoch()
	var st vesting.State
	if err := s.vm.GetState(s.vesting, &st); err != nil {
		return nil, fmt.Errorf("failed to load vesting state: %w", err)
	}
	rep, err := report.Build(ctx, s.vm.Store(), &st, result.Epoch, parallelism)
	if err != nil {
		return nil, err
	}
	result.Report = rep

	result.Balances = map[string]abi.TokenAmount{}
	for name, a := range s.accounts {
		if result.Balances[name], err = s.balanceOf(a); err != nil {
			return nil, err
		}
	}
	if result.Custody, err = s.balanceOf(s.vesting); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Simulator) execute(step Step) (*StepOutcome, error) {
	out := &StepOutcome{
		Day:         step.AtDay,
		Epoch:       s.vm.GetEpoch(),
		Action:      step.Action,
		Beneficiary: step.Beneficiary,
		Amount:      big.Zero(),
	}
	beneficiary := s.accounts[step.Beneficiary]

	switch step.Action {
	case ActionAdvance:
		out.Detail = fmt.Sprintf("advanced to epoch %d", out.Epoch)

	case ActionGrant:
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return nil, err
		}
		out.Amount = amount
		res, err := s.apply(s.owner, s.token, builtin.MethodsToken.Approve, &token.ApproveParams{Spender: s.vesting, Amount: amount})
		if err != nil {
			return nil, err
		}
		if !res.Code.IsSuccess() {
			out.Code, out.MessageID = res.Code, res.ID.String()
			out.Detail = "approval failed"
			return out, nil
		}
		res, err = s.apply(s.owner, s.vesting, builtin.MethodsVesting.CreateGrant, &vesting.CreateGrantParams{Beneficiary: beneficiary, Amount: amount})
		if err != nil {
			return nil, err
		}
		out.Code, out.MessageID = res.Code, res.ID.String()
		if res.Code.IsSuccess() {
			out.Detail = fmt.Sprintf("created grant %d", res.Ret.(*vesting.CreateGrantReturn).Index)
		} else {
			out.Detail = "grant failed"
		}

	case ActionClaim:
		var (
			res vm.MessageResult
			err error
		)
		if step.Grant != nil {
			res, err = s.apply(beneficiary, s.vesting, builtin.MethodsVesting.ClaimGrant, &vesting.ClaimGrantParams{Index: *step.Grant})
		} else {
			res, err = s.apply(beneficiary, s.vesting, builtin.MethodsVesting.Claim, nil)
		}
		if err != nil {
			return nil, err
		}
		out.Code, out.MessageID = res.Code, res.ID.String()
		if res.Code.IsSuccess() {
			out.Amount = res.Ret.(*vesting.ClaimReturn).Amount
			out.Detail = "claimed"
		} else {
			out.Detail = "claim failed"
		}

	case ActionQuery:
		var count vesting.GrantCountReturn
		if err := s.query(s.vesting, builtin.MethodsVesting.GrantCount, &beneficiary, &count); err != nil {
			return nil, err
		}
		unlocked, collected := big.Zero(), big.Zero()
		for i := uint64(0); i < count.Count; i++ {
			params := &vesting.GrantParams{Beneficiary: beneficiary, Index: i}
			var u, c abi.TokenAmount
			if err := s.query(s.vesting, builtin.MethodsVesting.CurrentUnlockedAmount, params, &u); err != nil {
				return nil, err
			}
			if err := s.query(s.vesting, builtin.MethodsVesting.CollectedAmount, params, &c); err != nil {
				return nil, err
			}
			unlocked = big.Add(unlocked, u)
			collected = big.Add(collected, c)
		}
		out.Amount = big.Sub(unlocked, collected)
		out.Detail = fmt.Sprintf("%d grants, unlocked %v, collected %v", count.Count, unlocked, collected)

	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
	return out, nil
}

// Index writes the committed engine state to the index database, migrating it first.
func (s *Simulator) Index(ctx context.Context, dsn string) (*indexer.Run, error) {
	version, err := indexer.MigrateUp(dsn)
	if err != nil {
		return nil, err
	}
	s.log.WithField("schema_version", version).Debug("index schema ready")

	db, err := indexer.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	act, found, err := s.vm.GetActor(s.vesting)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("vesting actor %v not found", s.vesting)
	}
	run, err := db.IndexState(ctx, s.vm.Store(), act.Head, s.vm.GetEpoch())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(log.Fields{"run": run.ID, "grants": run.GrantCount}).Info("indexed vesting state")
	return run, nil
}

// apply sends a message and forwards the actor log lines it produced.
func (s *Simulator) apply(from, to addr.Address, method abi.MethodNum, params cbor.Marshaler) (vm.MessageResult, error) {
	res, err := s.vm.ApplyMessage(from, to, big.Zero(), method, params)
	if err != nil {
		return vm.MessageResult{}, fmt.Errorf("failed to apply method %d to %v: %w", method, to, err)
	}
	entry := s.log.WithField("message", res.ID.String())
	for _, line := range res.Logs {
		entry.Debug(line)
	}
	return res, nil
}

func (s *Simulator) query(to addr.Address, method abi.MethodNum, params cbor.Marshaler, out cbor.Unmarshaler) error {
	ret, code, err := s.vm.Query(to, method, params)
	if err != nil {
		return err
	}
	if !code.IsSuccess() {
		return fmt.Errorf("query of method %d on %v exited %v", method, to, code)
	}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return err
	}
	return out.UnmarshalCBOR(&buf)
}

func (s *Simulator) balanceOf(a addr.Address) (abi.TokenAmount, error) {
	var balance abi.TokenAmount
	if err := s.query(s.token, builtin.MethodsToken.BalanceOf, &a, &balance); err != nil {
		return big.Zero(), err
	}
	return balance, nil
}
