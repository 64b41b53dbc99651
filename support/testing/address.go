// Package testing has address constructors for tests that fail the test instead of returning errors.
package testing

import (
	"math/rand"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/require"
)

func NewIDAddr(t testing.TB, id uint64) addr.Address {
	a, err := addr.NewIDAddress(id)
	require.NoError(t, err)
	return a
}

// NewSECP256K1Addr derives a key address from an arbitrary name; the payload is hashed.
func NewSECP256K1Addr(t testing.TB, name string) addr.Address {
	a, err := addr.NewSecp256k1Address([]byte(name))
	require.NoError(t, err)
	return a
}

// NewBLSAddr uses a 48-byte pseudo-random public key drawn from seed.
func NewBLSAddr(t testing.TB, seed int64) addr.Address {
	key := make([]byte, 48)
	rand.New(rand.NewSource(seed)).Read(key)
	a, err := addr.NewBLSAddress(key)
	require.NoError(t, err)
	return a
}

func NewActorAddr(t testing.TB, data string) addr.Address {
	a, err := addr.NewActorAddress([]byte(data))
	require.NoError(t, err)
	return a
}
