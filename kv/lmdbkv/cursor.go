package lmdbkv

import (
	"fmt"

	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
)

type cursor struct {
	table tables.Name
	c     *lmdb.Cursor
}

func (c *cursor) op(op lmdb.Op) ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, op)
	if lmdb.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lmdbkv: cursor %s: %w: %w", c.table, kverrors.ErrIo, err)
	}
	return k, v, nil
}

func (c *cursor) opKey(op lmdb.Op, key []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, op)
	if lmdb.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lmdbkv: cursor %s: %w: %w", c.table, kverrors.ErrIo, err)
	}
	return k, v, nil
}

func (c *cursor) First() ([]byte, []byte, error) { return c.op(lmdb.First) }
func (c *cursor) Next() ([]byte, []byte, error)  { return c.op(lmdb.Next) }
func (c *cursor) Last() ([]byte, []byte, error)  { return c.op(lmdb.Last) }
func (c *cursor) Prev() ([]byte, []byte, error)  { return c.op(lmdb.Prev) }

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.opKey(lmdb.SetRange, key)
}

func (c *cursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := c.opKey(lmdb.Set, key)
	return v, err
}

func (c *cursor) Close() { c.c.Close() }

func (c *cursor) Put(k, v []byte) error {
	if err := c.c.Put(k, v, 0); err != nil {
		return fmt.Errorf("lmdbkv: cursor put %s: %w: %w", c.table, kverrors.ErrIo, err)
	}
	return nil
}

func (c *cursor) DeleteCurrent() error {
	if err := c.c.Del(0); err != nil {
		return fmt.Errorf("lmdbkv: cursor delete %s: %w: %w", c.table, kverrors.ErrIo, err)
	}
	return nil
}

// dupCursor adds the dup-sort axis on top of cursor.
type dupCursor struct {
	*cursor
}

func (d *dupCursor) FirstDup() ([]byte, error) {
	_, v, err := d.op(lmdb.FirstDup)
	return v, err
}

func (d *dupCursor) NextDup() ([]byte, []byte, error) {
	return d.op(lmdb.NextDup)
}

func (d *dupCursor) SeekBothExact(key, subkey []byte) ([]byte, error) {
	_, v, err := d.c.Get(key, subkey, lmdb.GetBoth)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: cursor seek-both %s: %w: %w", d.table, kverrors.ErrIo, err)
	}
	return v, nil
}

func (d *dupCursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	_, v, err := d.c.Get(key, subkey, lmdb.GetBothRange)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lmdbkv: cursor seek-both-range %s: %w: %w", d.table, kverrors.ErrIo, err)
	}
	return v, nil
}

func (d *dupCursor) CountDuplicates() (uint64, error) {
	n, err := d.c.Count()
	if err != nil {
		return 0, fmt.Errorf("lmdbkv: cursor count %s: %w: %w", d.table, kverrors.ErrIo, err)
	}
	return n, nil
}

func (d *dupCursor) DeleteCurrentDuplicates() error {
	if err := d.c.Del(lmdb.NoDupData); err != nil {
		return fmt.Errorf("lmdbkv: cursor delete-dup %s: %w: %w", d.table, kverrors.ErrIo, err)
	}
	return nil
}
