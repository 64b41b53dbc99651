package vesting

import "github.com/filecoin-project/go-state-types/exitcode"

const (
	// The token ledger has not been bound yet.
	ErrNotInitialized = exitcode.FirstActorSpecificExitCode + iota
	// The token ledger was already bound.
	ErrAlreadyInitialized
	// The owner has not approved the vesting actor for enough tokens to fund a grant.
	ErrInsufficientAllowance
	// No grant exists at the beneficiary and index.
	ErrGrantNotFound
	// A call to the token ledger failed.
	ErrTransferFailed
)
