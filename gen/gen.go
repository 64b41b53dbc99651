package main

import (
	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/tokenvest/vesting-actors/actors/builtin/account"
	"github.com/tokenvest/vesting-actors/actors/builtin/system"
	"github.com/tokenvest/vesting-actors/actors/builtin/token"
	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/support/vm"
)

func main() {
	// Actors
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/system/cbor_gen.go", "system",
		// actor state
		system.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/account/cbor_gen.go", "account",
		// actor state
		account.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/token/cbor_gen.go", "token",
		// actor state
		token.State{},
		// method params
		token.ConstructorParams{},
		token.MintParams{},
		token.TransferParams{},
		token.TransferFromParams{},
		token.ApproveParams{},
		token.AllowanceParams{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/vesting/cbor_gen.go", "vesting",
		// actor state
		vesting.State{},
		vesting.Grant{},
		vesting.GrantSet{},
		// method params and returns
		vesting.CreateGrantParams{},
		vesting.CreateGrantReturn{},
		vesting.ClaimGrantParams{},
		vesting.ClaimReturn{},
		vesting.GrantParams{},
		vesting.GrantCountReturn{},
		vesting.SummaryReturn{},
	); err != nil {
		panic(err)
	}

	// Test harness
	if err := gen.WriteTupleEncodersToFile("./support/vm/cbor_gen.go", "vm",
		vm.Actor{},
	); err != nil {
		panic(err)
	}
}
