// Package lmdbkv implements kv.Env over github.com/ledgerwatch/lmdb-go,
// the embedded engine the teacher repository itself uses (see the
// teacher's common/dbutils/bucket.go, which already imports
// "github.com/ledgerwatch/lmdb-go/lmdb" for its DupSort/DupFixed flags
// and lmdb.DBI type).
package lmdbkv

import (
	"context"
	"fmt"
	"os"

	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
)

// SchemaVersion is the current on-disk schema version. A directory opened
// with a differing stored version fails with kverrors.ErrVersionMismatch
// (SPEC_FULL.md §6.1).
const SchemaVersion = 1

const versionFileName = "version"

// Env wraps an *lmdb.Env plus the resolved lmdb.DBI for every table.
type Env struct {
	env  *lmdb.Env
	dbis map[tables.Name]lmdb.DBI
}

// Open opens (or creates) a named environment directory. mode selects
// whether the caller intends read-only or read-write access; lmdb itself
// only distinguishes this through the lmdb.Readonly flag, the on-disk
// files are otherwise identical.
func Open(path string, mode kv.Mode) (*Env, error) {
	if err := checkVersion(path, mode); err != nil {
		return nil, err
	}

	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: new env: %w: %w", kverrors.ErrIo, err)
	}
	if err := env.SetMaxDBs(tables.NumTables + 1); err != nil {
		return nil, fmt.Errorf("lmdbkv: set max dbs: %w: %w", kverrors.ErrIo, err)
	}
	if err := env.SetMapSize(2 << 40); err != nil { // 2TiB ceiling, grown lazily by lmdb
		return nil, fmt.Errorf("lmdbkv: set map size: %w: %w", kverrors.ErrIo, err)
	}

	flags := uint(lmdb.NoReadahead)
	if mode == kv.RO {
		flags |= lmdb.Readonly
	}
	if err := os.MkdirAll(path, 0o755); err != nil && mode == kv.RW {
		return nil, fmt.Errorf("lmdbkv: mkdir %s: %w: %w", path, kverrors.ErrIo, err)
	}
	if err := env.Open(path, flags, 0o644); err != nil {
		return nil, fmt.Errorf("lmdbkv: open %s: %w: %w", path, kverrors.ErrIo, err)
	}

	e := &Env{env: env, dbis: make(map[tables.Name]lmdb.DBI, tables.NumTables)}
	if err := e.openTables(mode); err != nil {
		env.Close()
		return nil, err
	}
	if mode == kv.RW {
		if err := writeVersionFile(path); err != nil {
			env.Close()
			return nil, err
		}
	}
	return e, nil
}

// StoredVersion reads the on-disk version file without opening the
// environment itself, for `db version --path` (SPEC_FULL.md §6.3) to
// report a stored version distinct from the binary's own SchemaVersion.
// found is false for a directory that has never been opened for write.
func StoredVersion(path string) (version uint32, found bool, err error) {
	data, err := os.ReadFile(path + string(os.PathSeparator) + versionFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lmdbkv: read version file: %w: %w", kverrors.ErrIo, err)
	}
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, false, fmt.Errorf("lmdbkv: parse version file: %w: %w", kverrors.ErrCodec, err)
	}
	return version, true, nil
}

func checkVersion(path string, mode kv.Mode) error {
	data, err := os.ReadFile(path + string(os.PathSeparator) + versionFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh environment, nothing to check yet
		}
		return fmt.Errorf("lmdbkv: read version file: %w: %w", kverrors.ErrIo, err)
	}
	var found uint32
	if _, err := fmt.Sscanf(string(data), "%d", &found); err != nil {
		return fmt.Errorf("lmdbkv: parse version file: %w: %w", kverrors.ErrCodec, err)
	}
	if found != SchemaVersion {
		return fmt.Errorf("%w: found %d, expected %d", kverrors.ErrVersionMismatch, found, SchemaVersion)
	}
	return nil
}

func writeVersionFile(path string) error {
	name := path + string(os.PathSeparator) + versionFileName
	if err := os.WriteFile(name, []byte(fmt.Sprintf("%d", SchemaVersion)), 0o644); err != nil {
		return fmt.Errorf("lmdbkv: write version file: %w: %w", kverrors.ErrIo, err)
	}
	return nil
}

// openTables resolves every table's DBI. A read-write env creates tables
// that don't exist yet; a read-only env (lmdb.Readonly was set on Open)
// can't begin a write transaction at all, so it looks up the DBIs of
// whatever the RW opener already created, omitting lmdb.Create.
func (e *Env) openTables(mode kv.Mode) error {
	begin := e.env.Update
	baseFlags := uint(lmdb.Create)
	if mode == kv.RO {
		begin = e.env.View
		baseFlags = 0
	}
	return begin(func(txn *lmdb.Txn) error {
		for _, name := range tables.All {
			flags := baseFlags
			if tables.Configs[name].DupSort {
				flags |= lmdb.DupSort
			}
			dbi, err := txn.OpenDBI(string(name), flags)
			if err != nil {
				return fmt.Errorf("lmdbkv: open table %s: %w: %w", name, kverrors.ErrIo, err)
			}
			e.dbis[name] = dbi
		}
		return nil
	})
}

func (e *Env) dbi(name tables.Name) (lmdb.DBI, error) {
	dbi, ok := e.dbis[name]
	if !ok {
		return 0, fmt.Errorf("lmdbkv: unknown table %s: %w", name, kverrors.ErrNotFound)
	}
	return dbi, nil
}

func (e *Env) View(ctx context.Context, fn func(kv.RoTx) error) error {
	return e.env.View(func(txn *lmdb.Txn) error {
		txn.RawRead = true
		return fn(&tx{env: e, txn: txn})
	})
}

func (e *Env) Update(ctx context.Context, fn func(kv.RwTx) error) error {
	err := e.env.Update(func(txn *lmdb.Txn) error {
		return fn(&tx{env: e, txn: txn})
	})
	if lmdb.IsErrno(err, lmdb.MapFull) {
		return fmt.Errorf("%w: %w", kverrors.ErrMapFull, err)
	}
	return err
}

// Begin and BeginRw are used by call sites (the pruner, the block writer)
// that hold a transaction open across several method calls instead of one
// View/Update closure.
func (e *Env) Begin(ctx context.Context) (kv.RoTx, error) {
	txn, err := e.env.BeginTxn(nil, lmdb.Readonly)
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: begin ro tx: %w: %w", kverrors.ErrIo, err)
	}
	txn.RawRead = true
	return &tx{env: e, txn: txn}, nil
}

func (e *Env) BeginRw(ctx context.Context) (kv.RwTx, error) {
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: begin rw tx: %w: %w", kverrors.ErrIo, err)
	}
	return &tx{env: e, txn: txn}, nil
}

func (e *Env) Stats() (kv.EnvStats, error) {
	out := kv.EnvStats{Tables: make(map[tables.Name]kv.TableStats, tables.NumTables)}
	err := e.env.View(func(txn *lmdb.Txn) error {
		for name, dbi := range e.dbis {
			st, err := txn.Stat(dbi)
			if err != nil {
				return fmt.Errorf("lmdbkv: stat %s: %w: %w", name, kverrors.ErrIo, err)
			}
			out.Tables[name] = kv.TableStats{
				Entries:       uint64(st.Entries),
				Depth:         uint(st.Depth),
				BranchPages:   uint64(st.BranchPages),
				LeafPages:     uint64(st.LeafPages),
				OverflowPages: uint64(st.OverflowPages),
				PageSize:      uint(st.PSize),
				TotalSize:     uint64(st.PSize) * (uint64(st.BranchPages) + uint64(st.LeafPages) + uint64(st.OverflowPages)),
			}
		}
		return nil
	})
	if err != nil {
		return kv.EnvStats{}, err
	}

	info, err := e.env.Info()
	if err != nil {
		return kv.EnvStats{}, fmt.Errorf("lmdbkv: env info: %w: %w", kverrors.ErrIo, err)
	}
	out.Freelist = uint64(info.NumReaders) // placeholder signal until FreelistPages is exported by lmdb-go
	return out, nil
}

func (e *Env) Close() error {
	e.env.Close()
	return nil
}
