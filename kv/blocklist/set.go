// Package blocklist implements the BlockList entity of SPEC_FULL.md §3.1:
// a compressed, ordered set of block numbers recording "the blocks at
// which a key last changed". It is grounded on the teacher's
// ethdb/bitmapdb package, upgraded from the 32-bit roaring.Bitmap the
// teacher used for log/topic indexes to the 64-bit roaring64.Bitmap this
// module's u64 block numbers require.
package blocklist

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Set is a compressed ordered set of block numbers. The zero value is not
// usable; construct with New.
type Set struct {
	bm *roaring64.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{bm: roaring64.New()}
}

// FromSlice builds a Set from an unordered slice of block numbers.
func FromSlice(blocks []uint64) *Set {
	s := New()
	for _, b := range blocks {
		s.Insert(b)
	}
	return s
}

func (s *Set) Insert(n uint64) { s.bm.Add(n) }

// Remove deletes n, reporting whether it was present.
func (s *Set) Remove(n uint64) bool { return s.bm.CheckedRemove(n) }

func (s *Set) Contains(n uint64) bool { return s.bm.Contains(n) }

// Rank returns the number of elements <= v.
func (s *Set) Rank(v uint64) uint64 { return s.bm.Rank(v) }

// Select returns the n-th smallest element (0-indexed).
func (s *Set) Select(n uint64) (uint64, error) { return s.bm.Select(n) }

// Min reports the smallest element, if any.
func (s *Set) Min() (uint64, bool) {
	if s.bm.IsEmpty() {
		return 0, false
	}
	return s.bm.Minimum(), true
}

// Max reports the largest element, if any.
func (s *Set) Max() (uint64, bool) {
	if s.bm.IsEmpty() {
		return 0, false
	}
	return s.bm.Maximum(), true
}

func (s *Set) Len() uint64 { return s.bm.GetCardinality() }

func (s *Set) IsEmpty() bool { return s.bm.IsEmpty() }

// RemoveRange deletes every element in [lo, hi) and reports how many were
// removed — the pruner relies on this count matching its predicted stats
// exactly (SPEC_FULL.md §8 property 1).
func (s *Set) RemoveRange(lo, hi uint64) uint64 {
	before := s.bm.GetCardinality()
	s.bm.RemoveRange(lo, hi)
	return before - s.bm.GetCardinality()
}

// SmallestAbove returns the smallest element strictly greater than v, used
// by the historical reader to find the next change after a queried block.
func (s *Set) SmallestAbove(v uint64) (uint64, bool) {
	it := s.bm.Iterator()
	it.AdvanceIfNeeded(v + 1)
	if !it.HasNext() {
		return 0, false
	}
	return it.Next(), true
}

// Iter calls fn for every element in ascending order; it stops early if fn
// returns false.
func (s *Set) Iter(fn func(uint64) bool) {
	it := s.bm.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

func (s *Set) Clone() *Set { return &Set{bm: s.bm.Clone()} }

// Or merges other into s in place, used by the sharding layer's
// merge-on-append path (AppendMergeByOr).
func (s *Set) Or(other *Set) { s.bm.Or(other.bm) }

// SerializedSize reports the would-be on-disk size, the figure the
// sharding layer compares against ShardLimit.
func (s *Set) SerializedSize() int { return int(s.bm.GetSerializedSizeInBytes()) }

// RunOptimize compacts the internal container representation; cheap to
// call before serializing a shard that will be written once and read
// many times.
func (s *Set) RunOptimize() { s.bm.RunOptimize() }

// fastOr merges several sets with roaring's optimized multi-way union,
// used when a historical read spans several shards.
func fastOr(sets []*Set) *Set {
	bms := make([]*roaring64.Bitmap, len(sets))
	for i, s := range sets {
		bms[i] = s.bm
	}
	return &Set{bm: roaring64.FastOr(bms...)}
}

// MarshalBinary serializes the set for storage via the codec layer.
func (s *Set) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.bm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("blocklist: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a set previously produced by MarshalBinary.
func (s *Set) UnmarshalBinary(b []byte) error {
	bm := roaring64.New()
	if _, err := bm.ReadFrom(bytes.NewReader(b)); err != nil {
		return fmt.Errorf("blocklist: unmarshal: %w", err)
	}
	s.bm = bm
	return nil
}
