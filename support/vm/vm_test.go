package vm_test

import (
	"context"
	"errors"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	block "github.com/ipfs/go-block-format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tokenvest/vesting-actors/actors/builtin"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
	"github.com/tokenvest/vesting-actors/support/ipld"
	tutil "github.com/tokenvest/vesting-actors/support/testing"
	"github.com/tokenvest/vesting-actors/support/vm"
)

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)

	pubkey := tutil.NewSECP256K1Addr(t, "alice")
	ids := vm.CreateAccounts(t, v, abi.NewTokenAmount(1_000), pubkey)
	assert.Equal(t, tutil.NewIDAddr(t, builtin.FirstNonSingletonActorId), ids[0])

	resolved, found, err := v.NormalizeAddress(pubkey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ids[0], resolved)

	act, found, err := v.GetActor(pubkey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, builtin.AccountActorCodeID, act.Code)
	assert.Equal(t, abi.NewTokenAmount(1_000), act.Balance)

	_, err = v.CreateAccount(pubkey, big.Zero())
	assert.Error(t, err, "key addresses map to a single actor")
}

func TestValueTransfer(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)
	ids := vm.CreateAccounts(t, v, abi.NewTokenAmount(1_000), tutil.NewSECP256K1Addr(t, "alice"), tutil.NewBLSAddr(t, 1))
	alice, bob := ids[0], ids[1]

	vm.ApplyOk(t, v, alice, bob, abi.NewTokenAmount(400), builtin.MethodSend, nil)
	assertBalance(t, v, alice, 600)
	assertBalance(t, v, bob, 1_400)

	vm.ApplyCode(t, v, alice, bob, abi.NewTokenAmount(601), builtin.MethodSend, nil, exitcode.SysErrInsufficientFunds)
	assertBalance(t, v, alice, 600)
}

func TestApplyMessageFailures(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)
	alice := vm.CreateAccounts(t, v, big.Zero(), tutil.NewSECP256K1Addr(t, "alice"))[0]
	tokenAddr, err := v.DeployToken(alice, abi.NewTokenAmount(100))
	require.NoError(t, err)

	t.Run("unknown sender", func(t *testing.T) {
		result, err := v.ApplyMessage(tutil.NewIDAddr(t, 999), tokenAddr, big.Zero(), builtin.MethodsToken.TotalSupply, nil)
		require.NoError(t, err)
		assert.Equal(t, exitcode.SysErrSenderInvalid, result.Code)
	})

	t.Run("sender is not an account", func(t *testing.T) {
		result, err := v.ApplyMessage(tokenAddr, alice, big.Zero(), builtin.MethodSend, nil)
		require.NoError(t, err)
		assert.Equal(t, exitcode.SysErrSenderInvalid, result.Code)
	})

	t.Run("unknown receiver", func(t *testing.T) {
		vm.ApplyCode(t, v, alice, tutil.NewIDAddr(t, 999), big.Zero(), builtin.MethodsToken.TotalSupply, nil, exitcode.SysErrInvalidReceiver)
	})

	t.Run("unknown method", func(t *testing.T) {
		vm.ApplyCode(t, v, alice, tokenAddr, big.Zero(), 99, nil, exitcode.SysErrInvalidMethod)
	})

	t.Run("failed message rolls back state but not the sequence number", func(t *testing.T) {
		aliceBefore := mustActor(t, v, alice)
		tokenBefore := mustActor(t, v, tokenAddr)

		bob := tutil.NewIDAddr(t, 500)
		vm.ApplyCode(t, v, alice, tokenAddr, big.Zero(), builtin.MethodsToken.Transfer,
			&token.TransferParams{To: bob, Amount: abi.NewTokenAmount(101)}, exitcode.ErrInsufficientFunds)

		assert.Equal(t, tokenBefore.Head, mustActor(t, v, tokenAddr).Head)
		assert.Equal(t, aliceBefore.CallSeqNum+1, mustActor(t, v, alice).CallSeqNum)

		var balance abi.TokenAmount
		vm.QueryOk(t, v, tokenAddr, builtin.MethodsToken.BalanceOf, &alice, &balance)
		assert.Equal(t, abi.NewTokenAmount(100), balance)
	})
}

func TestMessageIDs(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)
	ids := vm.CreateAccounts(t, v, abi.NewTokenAmount(10), tutil.NewSECP256K1Addr(t, "alice"), tutil.NewSECP256K1Addr(t, "bob"))

	first, err := v.ApplyMessage(ids[0], ids[1], abi.NewTokenAmount(1), builtin.MethodSend, nil)
	require.NoError(t, err)
	second, err := v.ApplyMessage(ids[0], ids[1], abi.NewTokenAmount(1), builtin.MethodSend, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "identical messages differ by sequence number")
	assert.Len(t, first.ID.String(), 64)
}

func TestNestedSendFailure(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)
	ids := vm.CreateAccounts(t, v, big.Zero(), tutil.NewSECP256K1Addr(t, "owner"), tutil.NewSECP256K1Addr(t, "alice"))
	owner, alice := ids[0], ids[1]

	tokenAddr, err := v.DeployToken(owner, abi.NewTokenAmount(50))
	require.NoError(t, err)
	vestingAddr, err := v.DeployVesting(owner)
	require.NoError(t, err)
	vm.ApplyOk(t, v, owner, vestingAddr, big.Zero(), builtin.MethodsVesting.Initialize, &tokenAddr)

	// The allowance covers the grant but the balance does not.
	vm.ApplyOk(t, v, owner, tokenAddr, big.Zero(), builtin.MethodsToken.Approve,
		&token.ApproveParams{Spender: vestingAddr, Amount: abi.NewTokenAmount(100)})
	vm.ApplyCode(t, v, owner, vestingAddr, big.Zero(), builtin.MethodsVesting.CreateGrant,
		&vesting.CreateGrantParams{Beneficiary: alice, Amount: abi.NewTokenAmount(100)}, vesting.ErrTransferFailed)

	vm.ExpectInvocation{
		To:       vestingAddr,
		Method:   builtin.MethodsVesting.CreateGrant,
		Exitcode: vesting.ErrTransferFailed,
		From:     vm.ExpectAddress(owner),
		SubInvocations: []vm.ExpectInvocation{
			{
				To:       tokenAddr,
				Method:   builtin.MethodsToken.Allowance,
				Exitcode: exitcode.Ok,
				From:     vm.ExpectAddress(vestingAddr),
				Params:   vm.ExpectObject(&token.AllowanceParams{Owner: owner, Spender: vestingAddr}),
			},
			{
				To:       tokenAddr,
				Method:   builtin.MethodsToken.TransferFrom,
				Exitcode: exitcode.ErrInsufficientFunds,
			},
		},
	}.Matches(t, v.LastInvocation())

	var allowance abi.TokenAmount
	vm.QueryOk(t, v, tokenAddr, builtin.MethodsToken.Allowance, &token.AllowanceParams{Owner: owner, Spender: vestingAddr}, &allowance)
	assert.Equal(t, abi.NewTokenAmount(100), allowance)

	var summary vesting.SummaryReturn
	vm.QueryOk(t, v, vestingAddr, builtin.MethodsVesting.Summary, nil, &summary)
	assert.Equal(t, uint64(0), summary.GrantCount)
}

func TestConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	v := vm.NewVMWithSingletonsT(ctx, t)
	owner := vm.CreateAccounts(t, v, big.Zero(), tutil.NewSECP256K1Addr(t, "owner"))[0]
	tokenAddr, err := v.DeployToken(owner, abi.NewTokenAmount(1_000))
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			ret, code, err := v.Query(tokenAddr, builtin.MethodsToken.TotalSupply, nil)
			if err != nil {
				return err
			}
			if !code.IsSuccess() {
				return code
			}
			if !ret.(*abi.TokenAmount).Equals(abi.NewTokenAmount(1_000)) {
				t.Errorf("unexpected supply %v", ret)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// Rejects writes while failPuts is set.
type unwritableBlockStore struct {
	*ipld.BlockStoreInMemory
	failPuts bool
}

func (s *unwritableBlockStore) Put(b block.Block) error {
	if s.failPuts {
		return errors.New("store unavailable")
	}
	return s.BlockStoreInMemory.Put(b)
}

func TestStoreFailureKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	bs := &unwritableBlockStore{BlockStoreInMemory: ipld.NewBlockStoreInMemory()}
	v, err := vm.NewCustomStoreVMWithSingletons(ctx, adt.WrapBlockStore(ctx, bs))
	require.NoError(t, err)
	ids := vm.CreateAccounts(t, v, abi.NewTokenAmount(1_000), tutil.NewSECP256K1Addr(t, "alice"), tutil.NewSECP256K1Addr(t, "bob"))
	alice, bob := ids[0], ids[1]

	committed := v.StateRoot()
	bs.failPuts = true
	_, err = v.ApplyMessage(alice, bob, abi.NewTokenAmount(100), builtin.MethodSend, nil)
	require.Error(t, err)
	assert.Equal(t, committed, v.StateRoot())

	bs.failPuts = false
	vm.ApplyOk(t, v, alice, bob, abi.NewTokenAmount(100), builtin.MethodSend, nil)
	assertBalance(t, v, alice, 900)
	assertBalance(t, v, bob, 1_100)
}

func mustActor(t *testing.T, v *vm.VM, a addr.Address) *vm.Actor {
	act, found, err := v.GetActor(a)
	require.NoError(t, err)
	require.True(t, found)
	return act
}

func assertBalance(t *testing.T, v *vm.VM, a addr.Address, expected int64) {
	assert.Equal(t, abi.NewTokenAmount(expected), mustActor(t, v, a).Balance)
}
