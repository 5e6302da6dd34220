package lmdbkv

import (
	"fmt"

	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
)

type tx struct {
	env *Env
	txn *lmdb.Txn
}

func (t *tx) Entries(table tables.Name) (uint64, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return 0, err
	}
	st, err := t.txn.Stat(dbi)
	if err != nil {
		return 0, fmt.Errorf("lmdbkv: entries %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return uint64(st.Entries), nil
}

func (t *tx) Get(table tables.Name, key []byte) ([]byte, bool, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, false, err
	}
	v, err := t.txn.Get(dbi, key)
	if lmdb.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lmdbkv: get %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return append([]byte(nil), v...), true, nil
}

func (t *tx) Put(table tables.Name, key, val []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, val, 0); err != nil {
		return fmt.Errorf("lmdbkv: put %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return nil
}

func (t *tx) Delete(table tables.Name, key []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !lmdb.IsNotFound(err) {
		return fmt.Errorf("lmdbkv: delete %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return nil
}

func (t *tx) DeleteDup(table tables.Name, key, val []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, val); err != nil && !lmdb.IsNotFound(err) {
		return fmt.Errorf("lmdbkv: delete dup %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return nil
}

func (t *tx) Clear(table tables.Name) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Drop(dbi, false); err != nil {
		return fmt.Errorf("lmdbkv: clear %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return nil
}

func (t *tx) Cursor(table tables.Name) (kv.Cursor, error) {
	return t.cursor(table)
}

func (t *tx) CursorDup(table tables.Name) (kv.DupCursor, error) {
	c, err := t.cursor(table)
	if err != nil {
		return nil, err
	}
	return &dupCursor{cursor: c}, nil
}

func (t *tx) CursorRw(table tables.Name) (kv.RwCursor, error) {
	c, err := t.cursor(table)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (t *tx) CursorDupRw(table tables.Name) (kv.RwDupCursor, error) {
	c, err := t.cursor(table)
	if err != nil {
		return nil, err
	}
	return &dupCursor{cursor: c}, nil
}

func (t *tx) cursor(table tables.Name) (*cursor, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: open cursor %s: %w: %w", table, kverrors.ErrIo, err)
	}
	return &cursor{table: table, c: c}, nil
}

func (t *tx) Commit() error {
	if err := t.txn.Commit(); err != nil {
		if lmdb.IsErrno(err, lmdb.MapFull) {
			return fmt.Errorf("%w: %w", kverrors.ErrMapFull, err)
		}
		return fmt.Errorf("lmdbkv: commit: %w: %w", kverrors.ErrIo, err)
	}
	return nil
}

func (t *tx) Abort() { t.txn.Abort() }
