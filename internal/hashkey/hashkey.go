// Package hashkey centralizes the fast, non-cryptographic hashing used for
// shard/partition routing (PartitionedLRU, PartSlab) and for SegmentUtil's
// multi-probe page placement. The original simulator used SHA-1 for key
// hashing and a from-scratch MurmurHash3_x64_128 for page probing; both are
// replaced here with real ecosystem hashes already present in the teacher's
// own dependency graph, exactly as the design notes sanction.
package hashkey

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	metro "github.com/dgryski/go-metro"
)

// Shard hashes key and reduces it mod n, used (via Request.HashKey) by
// PartitionedLRU and PartSlab to route a key to its owning partition.
func Shard(key uint64, n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	h := xxhash.Checksum64(buf[:])
	return int(h % uint64(n))
}

// Rehash repeatedly applies a MurmurHash3-family mix (via go-metro, the
// teacher's own indirect dependency) to seed, producing the same "walk a
// chain of hash values" probe sequence SegmentUtil's original
// MurmurHash3_x64_128-based multi-probe loop does: each probe rehashes the
// previous hash rather than re-hashing the key with a different seed.
func Rehash(seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	return metro.Hash64(buf[:], 0)
}
