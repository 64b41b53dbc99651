package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

var MethodsAccount = struct {
	Constructor   abi.MethodNum
	PubkeyAddress abi.MethodNum
}{MethodConstructor, 2}

var MethodsToken = struct {
	Constructor  abi.MethodNum
	Mint         abi.MethodNum
	Transfer     abi.MethodNum
	TransferFrom abi.MethodNum
	Approve      abi.MethodNum
	BalanceOf    abi.MethodNum
	Allowance    abi.MethodNum
	TotalSupply  abi.MethodNum
}{MethodConstructor, 2, 3, 4, 5, 6, 7, 8}

var MethodsVesting = struct {
	Constructor           abi.MethodNum
	Initialize            abi.MethodNum
	CreateGrant           abi.MethodNum
	Claim                 abi.MethodNum
	ClaimGrant            abi.MethodNum
	CurrentUnlockedAmount abi.MethodNum
	CollectedAmount       abi.MethodNum
	GetGrant              abi.MethodNum
	GrantCount            abi.MethodNum
	Summary               abi.MethodNum
}{MethodConstructor, 2, 3, 4, 5, 6, 7, 8, 9, 10}
