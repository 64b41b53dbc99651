package ipld

import (
	"context"
	"fmt"
	"sync"

	block "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"

	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// Creates a new, empty IPLD store in memory.
// This store is appropriate for most kinds of testing and for the simulator.
func NewADTStore(ctx context.Context) adt.Store {
	return adt.WrapBlockStore(ctx, NewBlockStoreInMemory())
}

// BlockStoreInMemory is a synchronized in-memory blockstore.
// Blocks are immutable, so concurrent readers never observe partial writes.
type BlockStoreInMemory struct {
	mu   sync.RWMutex
	data map[cid.Cid]block.Block
}

var _ ipldcbor.IpldBlockstore = (*BlockStoreInMemory)(nil)

func NewBlockStoreInMemory() *BlockStoreInMemory {
	return &BlockStoreInMemory{data: make(map[cid.Cid]block.Block)}
}

func (mb *BlockStoreInMemory) Get(c cid.Cid) (block.Block, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	d, ok := mb.data[c]
	if ok {
		return d, nil
	}
	return nil, fmt.Errorf("not found: %s", c)
}

func (mb *BlockStoreInMemory) Put(b block.Block) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.data[b.Cid()] = b
	return nil
}

// Len is the number of distinct blocks stored.
func (mb *BlockStoreInMemory) Len() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.data)
}

// MetricsBlockStore counts reads and writes passing through to an underlying blockstore.
type MetricsBlockStore struct {
	bs ipldcbor.IpldBlockstore

	mu         sync.Mutex
	Writes     uint64
	WriteBytes uint64
	Reads      uint64
	ReadBytes  uint64
}

var _ ipldcbor.IpldBlockstore = (*MetricsBlockStore)(nil)

func NewMetricsBlockStore(underlying ipldcbor.IpldBlockstore) *MetricsBlockStore {
	return &MetricsBlockStore{bs: underlying}
}

func (ms *MetricsBlockStore) Get(c cid.Cid) (block.Block, error) {
	blk, err := ms.bs.Get(c)
	if err != nil {
		return blk, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.Reads++
	ms.ReadBytes += uint64(len(blk.RawData()))
	return blk, nil
}

func (ms *MetricsBlockStore) Put(b block.Block) error {
	ms.mu.Lock()
	ms.Writes++
	ms.WriteBytes += uint64(len(b.RawData()))
	ms.mu.Unlock()
	return ms.bs.Put(b)
}

// Snapshot returns a copy of the counters.
func (ms *MetricsBlockStore) Snapshot() StoreMetrics {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return StoreMetrics{Writes: ms.Writes, WriteBytes: ms.WriteBytes, Reads: ms.Reads, ReadBytes: ms.ReadBytes}
}

func (ms *MetricsBlockStore) ReadCount() uint64 {
	return ms.Snapshot().Reads
}

func (ms *MetricsBlockStore) WriteCount() uint64 {
	return ms.Snapshot().Writes
}

type StoreMetrics struct {
	Writes     uint64
	WriteBytes uint64
	Reads      uint64
	ReadBytes  uint64
}

func (m StoreMetrics) String() string {
	return fmt.Sprintf("reads: %d (%d bytes), writes: %d (%d bytes)", m.Reads, m.ReadBytes, m.Writes, m.WriteBytes)
}
