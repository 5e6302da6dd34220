package blocklist

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/c2h5oh/datasize"

	"github.com/katana-sh/katana/kv"
)

// ShardLimit bounds how large a single on-disk shard row is allowed to
// grow before a BlockList is split across multiple rows keyed by
// (key, shardMaxBlock). Grounded on ethdb/bitmapdb/dbutils.go's own
// ShardLimit: large change-set bitmaps get touched by nearly every new
// block, and LMDB's copy-on-write means appending a handful of values to
// a multi-megabyte value rewrites the whole page chain. Sharding keeps
// each write's blast radius bounded.
const ShardLimit = 3 * datasize.KB

// hotShard is the suffix marking the currently-open, highest shard of a
// key — the one new block numbers get appended to.
const hotShard = math.MaxUint64

// MaxBlock is the largest representable block number, the upper bound
// callers pass to Get/TruncateRange to mean "through the hot shard".
const MaxBlock = math.MaxUint64

func shardKey(key []byte, shard uint64) []byte {
	out := make([]byte, len(key)+8)
	copy(out, key)
	binary.BigEndian.PutUint64(out[len(out)-8:], shard)
	return out
}

func shardSuffix(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// AppendMergeByOr merges delta into the hot shard of key and rewrites the
// shard set, splitting it further if it now exceeds ShardLimit.
func AppendMergeByOr(c kv.RwCursor, key []byte, delta *Set) error {
	hot := shardKey(key, hotShard)
	v, err := c.SeekExact(hot)
	if err != nil {
		return err
	}
	if v == nil {
		return writeBitmapSharded(c, key, delta)
	}
	existing := New()
	if err := existing.UnmarshalBinary(v); err != nil {
		return err
	}
	delta = delta.Clone()
	delta.Or(existing)
	return writeBitmapSharded(c, key, delta)
}

// writeBitmapSharded writes delta to db under key, splitting into
// multiple (key, shardMaxBlock) rows once the serialized size exceeds
// ShardLimit. Mirrors ethdb/bitmapdb/dbutils.go's writeBitmapSharded,
// generalized from 32-bit to 64-bit block numbers.
func writeBitmapSharded(c kv.RwCursor, key []byte, delta *Set) error {
	if delta.SerializedSize() <= int(ShardLimit) {
		return putShard(c, key, hotShard, delta)
	}

	shardsAmount := uint64(delta.SerializedSize() / int(ShardLimit))
	if shardsAmount == 0 {
		shardsAmount = 1
	}
	minV, _ := delta.Min()
	maxV, _ := delta.Max()
	step := (maxV - minV) / shardsAmount
	step = step / 16
	if step == 0 {
		step = 1
	}

	shard, tmp := New(), New()
	for !delta.IsEmpty() {
		from, _ := delta.Min()
		to := from + step
		tmp = New()
		delta.Iter(func(n uint64) bool {
			if n >= from && n < to {
				tmp.Insert(n)
			}
			return true
		})
		shard.Or(tmp)
		shard.RunOptimize()
		delta.RemoveRange(from, to)
		if delta.IsEmpty() {
			break
		}
		if shard.SerializedSize() >= int(ShardLimit) {
			maxShard, _ := shard.Max()
			if err := putShard(c, key, maxShard, shard); err != nil {
				return err
			}
			shard = New()
		}
	}

	if !shard.IsEmpty() {
		return putShard(c, key, hotShard, shard)
	}
	return nil
}

func putShard(c kv.RwCursor, key []byte, shard uint64, set *Set) error {
	v, err := set.MarshalBinary()
	if err != nil {
		return err
	}
	return c.Put(shardKey(key, shard), v)
}

// TruncateRange removes [from, to) from the BlockList stored under key,
// across however many shards that spans, and reports the exact number of
// block numbers removed. Empty shards are deleted outright; the topmost
// remaining shard is renamed back to the hot-shard suffix so future
// appends keep landing on it.
func TruncateRange(c kv.RwCursor, key []byte, from, to uint64) (uint64, error) {
	var removed uint64
	start := shardKey(key, from)

	type row struct {
		k []byte
		v []byte
	}
	var touched []row

	k, v, err := c.Seek(start)
	for ; k != nil; k, v, err = c.Next() {
		if err != nil {
			return removed, err
		}
		if !bytes.HasPrefix(k, key) {
			break
		}
		touched = append(touched, row{append([]byte(nil), k...), append([]byte(nil), v...)})
		if shardSuffix(k) != hotShard && shardSuffix(k) < to {
			continue
		}
		break
	}

	var lastKept []byte
	var lastKeptSet *Set
	for _, r := range touched {
		set := New()
		if err := set.UnmarshalBinary(r.v); err != nil {
			return removed, err
		}
		removed += set.RemoveRange(from, to)
		if set.IsEmpty() {
			if _, err := c.SeekExact(r.k); err != nil {
				return removed, err
			}
			if err := c.DeleteCurrent(); err != nil {
				return removed, err
			}
			continue
		}
		set.RunOptimize()
		if _, err := c.SeekExact(r.k); err != nil {
			return removed, err
		}
		if err := c.Put(r.k, mustMarshal(set)); err != nil {
			return removed, err
		}
		lastKept, lastKeptSet = r.k, set
	}

	if lastKept != nil && shardSuffix(lastKept) != hotShard && shardSuffix(touched[len(touched)-1].k) == hotShard {
		if _, err := c.SeekExact(lastKept); err != nil {
			return removed, err
		}
		if err := c.DeleteCurrent(); err != nil {
			return removed, err
		}
		if err := c.Put(shardKey(key, hotShard), mustMarshal(lastKeptSet)); err != nil {
			return removed, err
		}
	}

	return removed, nil
}

func mustMarshal(s *Set) []byte {
	b, err := s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

// Get reads and merges every shard overlapping [from, to].
func Get(c kv.Cursor, key []byte, from, to uint64) (*Set, error) {
	var shards []*Set
	start := shardKey(key, from)
	k, v, err := c.Seek(start)
	for ; k != nil; k, v, err = c.Next() {
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(k, key) {
			break
		}
		s := New()
		if err := s.UnmarshalBinary(v); err != nil {
			return nil, err
		}
		shards = append(shards, s)
		if shardSuffix(k) != hotShard && shardSuffix(k) >= to {
			break
		}
	}
	if len(shards) == 0 {
		return New(), nil
	}
	return fastOr(shards), nil
}
