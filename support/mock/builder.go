package mock

import (
	"context"
	"maps"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
)

// RuntimeBuilder configures a mock Runtime. One builder may produce many runtimes.
type RuntimeBuilder struct {
	rt *Runtime
}

func NewBuilder(receiver addr.Address) *RuntimeBuilder {
	return &RuntimeBuilder{&Runtime{
		ctx:           context.Background(),
		receiver:      receiver,
		state:         cid.Undef,
		callerType:    cid.Undef,
		store:         map[cid.Cid][]byte{},
		balance:       big.Zero(),
		valueReceived: big.Zero(),
		idAddresses:   map[addr.Address]addr.Address{},
		actorCodeCIDs: map[addr.Address]cid.Cid{},
		expectSends:   []*expectedMessage{},
	}}
}

// Build returns a runtime bound to t. Maps are copied so runtimes do not share state.
func (b *RuntimeBuilder) Build(t testing.TB) *Runtime {
	rt := *b.rt
	rt.store = maps.Clone(b.rt.store)
	rt.idAddresses = maps.Clone(b.rt.idAddresses)
	rt.actorCodeCIDs = maps.Clone(b.rt.actorCodeCIDs)
	rt.t = t
	return &rt
}

func (b *RuntimeBuilder) WithEpoch(epoch abi.ChainEpoch) *RuntimeBuilder {
	b.rt.epoch = epoch
	return b
}

func (b *RuntimeBuilder) WithCaller(address addr.Address, code cid.Cid) *RuntimeBuilder {
	b.rt.caller = address
	b.rt.callerType = code
	return b
}
