package vm

import (
	"context"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	cid "github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/account"
	"github.com/tokenvest/vesting-actors/actors/builtin/exported"
	"github.com/tokenvest/vesting-actors/actors/builtin/system"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/ipld"
)

// Creates a new VM over an in-memory store with the system actor and the burnt funds account installed.
func NewVMWithSingletons(ctx context.Context) (*VM, error) {
	return NewCustomStoreVMWithSingletons(ctx, ipld.NewADTStore(ctx))
}

// Creates a new VM over the given store with the system actor and the burnt funds account installed.
func NewCustomStoreVMWithSingletons(ctx context.Context, store adt.Store) (*VM, error) {
	lookup := ActorImplLookup{}
	for _, actor := range exported.BuiltinActors() {
		lookup[actor.Code()] = actor
	}

	vm, err := NewVM(ctx, lookup, store)
	if err != nil {
		return nil, err
	}
	if err := vm.installActor(builtin.SystemActorCodeID, builtin.SystemActorAddr, &system.State{}, big.Zero()); err != nil {
		return nil, xerrors.Errorf("failed to install system actor: %w", err)
	}
	if err := vm.installActor(builtin.AccountActorCodeID, builtin.BurntFundsActorAddr, &account.State{Address: builtin.BurntFundsActorAddr}, big.Zero()); err != nil {
		return nil, xerrors.Errorf("failed to install burnt funds actor: %w", err)
	}
	return vm, nil
}

// Creates an account actor for a key address, returning its ID address.
func (vm *VM) CreateAccount(pubkey addr.Address, balance abi.TokenAmount) (addr.Address, error) {
	idAddr, result, err := vm.CreateActor(builtin.AccountActorCodeID, pubkey, balance, &pubkey)
	if err != nil {
		return addr.Undef, err
	}
	if !result.Code.IsSuccess() {
		return addr.Undef, xerrors.Errorf("failed to construct account for %v: exit code %v", pubkey, result.Code)
	}
	return idAddr, nil
}

// Deploys a token ledger whose owner receives the initial supply.
func (vm *VM) DeployToken(owner addr.Address, initialSupply abi.TokenAmount) (addr.Address, error) {
	return vm.deploy(builtin.TokenActorCodeID, &token.ConstructorParams{Owner: owner, InitialSupply: initialSupply})
}

// Deploys an uninitialized vesting engine.
func (vm *VM) DeployVesting(owner addr.Address) (addr.Address, error) {
	return vm.deploy(builtin.VestingActorCodeID, &owner)
}

func (vm *VM) deploy(code cid.Cid, params cbor.Marshaler) (addr.Address, error) {
	idAddr, result, err := vm.CreateActor(code, addr.Undef, big.Zero(), params)
	if err != nil {
		return addr.Undef, err
	}
	if !result.Code.IsSuccess() {
		return addr.Undef, xerrors.Errorf("failed to construct %s: exit code %v", builtin.ActorNameByCode(code), result.Code)
	}
	return idAddr, nil
}
