// Package kv provides typed, transactional access to an embedded sorted
// key-value engine (SPEC_FULL.md §4.1). It keeps the open/tx/cursor
// vocabulary of the teacher's ethdb.Database/ethdb.Bucket/ethdb.Cursor
// surface; tables are addressed by their kv/tables name, and keys and
// values cross the API as raw []byte.
package kv

import (
	"context"

	"github.com/katana-sh/katana/kv/tables"
)

// Mode selects how an environment is opened.
type Mode int

const (
	RO Mode = iota
	RW
)

// Codec is implemented by every table's key and value type: the pair the
// spec calls compress/decompress (SPEC_FULL.md §4.2).
type Codec interface {
	Encode() ([]byte, error)
	Decode([]byte) error
}

// Env is a process-owned handle onto an on-disk environment. Exactly one
// RwTx may be open at a time; any number of RoTx may coexist.
type Env interface {
	// View runs fn inside a read-only transaction, invalidated on return.
	View(ctx context.Context, fn func(tx RoTx) error) error
	// Update runs fn inside a read-write transaction; fn's return value
	// decides commit (nil) vs abort (non-nil).
	Update(ctx context.Context, fn func(tx RwTx) error) error
	// Begin/BeginRw expose a transaction outside of the View/Update
	// callback shape for call sites that need to hold one across several
	// method calls (the pruner and the block writer both do).
	Begin(ctx context.Context) (RoTx, error)
	BeginRw(ctx context.Context) (RwTx, error)
	Stats() (EnvStats, error)
	Close() error
}

// EnvStats aggregates per-table page statistics plus the environment's
// freelist page count, per SPEC_FULL.md §4.1.
type EnvStats struct {
	Tables   map[tables.Name]TableStats
	Freelist uint64
}

type TableStats struct {
	Entries       uint64
	Depth         uint
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	PageSize      uint
	TotalSize     uint64
}

// RoTx is a read-only transaction snapshot, pinned at the moment it was
// opened: it never observes commits made after that point.
type RoTx interface {
	Entries(table tables.Name) (uint64, error)
	Cursor(table tables.Name) (Cursor, error)
	CursorDup(table tables.Name) (DupCursor, error)
	Get(table tables.Name, key []byte) (val []byte, found bool, err error)
}

// RwTx adds mutation on top of RoTx.
type RwTx interface {
	RoTx
	Put(table tables.Name, key, val []byte) error
	Delete(table tables.Name, key []byte) error
	DeleteDup(table tables.Name, key, val []byte) error
	Clear(table tables.Name) error
	CursorRw(table tables.Name) (RwCursor, error)
	CursorDupRw(table tables.Name) (RwDupCursor, error)
	Commit() error
	Abort()
}

// Cursor iterates a table's rows in key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Seek(key []byte) (k, v []byte, err error)
	SeekExact(key []byte) (v []byte, err error)
	Last() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Close()
}

// DupCursor additionally walks the (key, subkey) axis of a dup-sort table.
type DupCursor interface {
	Cursor
	FirstDup() (v []byte, err error)
	NextDup() (k, v []byte, err error)
	SeekBothExact(key, subkey []byte) (v []byte, err error)
	SeekBothRange(key, subkey []byte) (v []byte, err error)
	CountDuplicates() (uint64, error)
}

// RwCursor adds delete-at-cursor to Cursor.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	DeleteCurrent() error
}

// RwDupCursor adds delete-at-cursor and delete-all-duplicates to DupCursor.
type RwDupCursor interface {
	DupCursor
	Put(k, v []byte) error
	DeleteCurrent() error
	DeleteCurrentDuplicates() error
}
