package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/stats"
)

// PartitionedLRU splits total capacity into numPartitions equal-sized,
// fully independent LRU chains, routing each request to a partition by
// hashing its key — xxhash standing in for the original's SHA-1, per the
// simulator's own fast-hash substitution note. Partitions never share
// capacity or see each other's evictions, trading away cross-key skew
// tolerance for strict isolation between shards.
type PartitionedLRU struct {
	numPartitions uint64
	maxReqSize    uint64
	partitions    []*LRU
	stat          *stats.Tracker
}

// NewPartitionedLRU constructs a PartitionedLRU with numPartitions shards,
// each sized globalMem/numPartitions bytes.
func NewPartitionedLRU(numPartitions uint64, globalMem, maxReqSize uint64) *PartitionedLRU {
	p := &PartitionedLRU{
		numPartitions: numPartitions,
		maxReqSize:    maxReqSize,
		partitions:    make([]*LRU, numPartitions),
		stat:          stats.New("partitioned_lru"),
	}
	partitionSize := globalMem / numPartitions
	for i := range p.partitions {
		p.partitions[i] = NewLRU(partitionSize)
	}
	return p
}

func (p *PartitionedLRU) Stats() *stats.Tracker { return p.stat }
func (p *PartitionedLRU) BytesCached() uint64 {
	var b uint64
	for _, part := range p.partitions {
		b += part.stat.BytesCached
	}
	return b
}

// Process routes the request to its partition by hashing Kid mod
// numPartitions, and defers entirely to that partition's own LRU.Process.
func (p *PartitionedLRU) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		p.stat.Accesses++
	}
	idx := r.HashKey(int(p.numPartitions))
	outcome := p.partitions[idx].Process(r, warmup)
	if outcome != ProcMiss {
		if !warmup {
			p.stat.Hits++
		}
	}
	return outcome
}

func (p *PartitionedLRU) DumpStats(w io.Writer) { p.stat.Dump(w) }
