package fork

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/codec"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/writer"
	"github.com/katana-sh/katana/workerpool"
)

// fetchConcurrency bounds how many upstream provider calls this
// backend's actor ever has in flight at once, regardless of how many
// distinct keys arrive concurrently.
const fetchConcurrency = 8

type requestKind int

const (
	kindNonce requestKind = iota
	kindStorage
	kindClassHash
	kindClass
	kindCompiledClassHash
	kindStateRoots
)

// requestKey is the dedup identifier of spec.md §4.9: Nonce(addr),
// Storage(addr,key), ClassHash(addr), Class(hash), plus
// CompiledClassHash(hash) for the fifth upstream call the spec's JSON-RPC
// surface adds.
type requestKey struct {
	kind    requestKind
	address types.FeltKey
	key     types.FeltKey
}

func addrKey(f *felt.Felt) types.FeltKey { return types.NewFeltKey(f) }

type result struct {
	nonce             *felt.Felt
	storage           *felt.Felt
	classHash         *felt.Felt
	class             *types.ContractClass
	compiledClassHash *felt.Felt
	classesRoot       *felt.Felt
	contractsRoot     *felt.Felt
	found             bool
	err               error
}

type call struct {
	key  requestKey
	resp chan result
}

type pendingCall struct {
	waiters []chan result
}

type completion struct {
	key requestKey
	res result
}

// Handle is a cheap clone of the actor's request send-side, per spec.md
// §4.9's "cyclic handles" design note: the task owns the receiver and
// the dedup map, handles only ever hold the sender. Clone makes another
// independent handle sharing the same backend; Close releases one —
// when the last is released, the request channel closes and the actor
// drains its pending work and exits.
type Handle struct {
	b *Backend
}

func (h *Handle) Clone() *Handle {
	atomic.AddInt32(&h.b.refCount, 1)
	return &Handle{b: h.b}
}

func (h *Handle) Close() {
	if atomic.AddInt32(&h.b.refCount, -1) == 0 {
		close(h.b.requests)
	}
}

func (h *Handle) send(ctx context.Context, key requestKey) (result, error) {
	resp := make(chan result, 1)
	select {
	case h.b.requests <- call{key: key, resp: resp}:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (h *Handle) Nonce(ctx context.Context, address *felt.Felt) (*felt.Felt, bool, error) {
	r, err := h.send(ctx, requestKey{kind: kindNonce, address: addrKey(address)})
	if err != nil {
		return nil, false, err
	}
	return r.nonce, r.found, r.err
}

func (h *Handle) Storage(ctx context.Context, address, key *felt.Felt) (*felt.Felt, bool, error) {
	r, err := h.send(ctx, requestKey{kind: kindStorage, address: addrKey(address), key: addrKey(key)})
	if err != nil {
		return nil, false, err
	}
	return r.storage, r.found, r.err
}

func (h *Handle) ClassHash(ctx context.Context, address *felt.Felt) (*felt.Felt, bool, error) {
	r, err := h.send(ctx, requestKey{kind: kindClassHash, address: addrKey(address)})
	if err != nil {
		return nil, false, err
	}
	return r.classHash, r.found, r.err
}

func (h *Handle) Class(ctx context.Context, classHash *felt.Felt) (*types.ContractClass, bool, error) {
	r, err := h.send(ctx, requestKey{kind: kindClass, address: addrKey(classHash)})
	if err != nil {
		return nil, false, err
	}
	return r.class, r.found, r.err
}

func (h *Handle) CompiledClassHash(ctx context.Context, classHash *felt.Felt) (*felt.Felt, bool, error) {
	r, err := h.send(ctx, requestKey{kind: kindCompiledClassHash, address: addrKey(classHash)})
	if err != nil {
		return nil, false, err
	}
	return r.compiledClassHash, r.found, r.err
}

// StateRoots fetches the upstream node's classes/contracts trie roots
// at the pinned block (spec.md §4.9's forked-root resolution). Every
// call carries the same zero-value requestKey, so concurrent callers
// dedup onto one upstream round trip the same way Nonce/Storage/etc do
// (spec.md §8 property 8).
func (h *Handle) StateRoots(ctx context.Context) (classesRoot, contractsRoot *felt.Felt, err error) {
	r, err := h.send(ctx, requestKey{kind: kindStateRoots})
	if err != nil {
		return nil, nil, err
	}
	return r.classesRoot, r.contractsRoot, r.err
}

// Backend is the thread-owned actor of spec.md §4.9: one goroutine reads
// inbound requests and fetch completions off two channels, owns the
// dedup map, and is the only goroutine that ever opens a write
// transaction against db — so write-through never races.
type Backend struct {
	provider *Provider
	block    BlockID
	db       kv.Env

	requests    chan call
	completions chan completion
	closed      chan struct{}
	refCount    int32

	pending map[requestKey]*pendingCall
	pool    *workerpool.Pool
}

// NewBackend starts the actor goroutine and returns its handle. Pinning
// to block means every upstream call this backend ever makes targets
// that exact block; nothing here enforces the pin against the caller (the
// reader flavor that wraps this handle is responsible for only calling
// it when the caller's own requested block matches, surfacing
// kverrors.ErrBackendOutOfRange otherwise).
func NewBackend(provider *Provider, block BlockID, db kv.Env) *Handle {
	pool, _ := workerpool.New(context.Background(), fetchConcurrency)
	b := &Backend{
		provider:    provider,
		block:       block,
		db:          db,
		requests:    make(chan call),
		completions: make(chan completion),
		closed:      make(chan struct{}),
		refCount:    1,
		pending:     make(map[requestKey]*pendingCall),
		pool:        pool,
	}
	go b.run()
	return &Handle{b: b}
}

func (b *Backend) run() {
	defer close(b.closed)
	for {
		select {
		case c, ok := <-b.requests:
			if !ok {
				for len(b.pending) > 0 {
					b.handleCompletion(<-b.completions)
				}
				return
			}
			b.handleRequest(c)
		case comp := <-b.completions:
			b.handleCompletion(comp)
		}
	}
}

func (b *Backend) handleRequest(c call) {
	if pc, ok := b.pending[c.key]; ok {
		pc.waiters = append(pc.waiters, c.resp)
		return
	}
	b.pending[c.key] = &pendingCall{waiters: []chan result{c.resp}}
	key := c.key
	// Acquiring a pool slot can block, so it happens off the actor
	// goroutine: only the bounded fetch itself (and the completions
	// send it ends with) needs to stay capped at fetchConcurrency.
	go func() {
		b.pool.Go(func() error {
			b.fetch(key)
			return nil
		})
	}()
}

func (b *Backend) handleCompletion(comp completion) {
	pc, ok := b.pending[comp.key]
	if !ok {
		return
	}
	delete(b.pending, comp.key)
	if comp.res.err == nil {
		if err := b.writeThrough(comp.key, comp.res); err != nil {
			comp.res.err = err
		}
	}
	for _, w := range pc.waiters {
		w <- comp.res
	}
}

// fetch runs on its own goroutine (so a slow upstream call never blocks
// the actor from servicing other keys) and reports back over the
// completions channel, which only the actor goroutine ever reads.
func (b *Backend) fetch(key requestKey) {
	ctx := context.Background()
	var res result
	switch key.kind {
	case kindNonce:
		res.nonce, res.found, res.err = b.provider.Nonce(ctx, b.block, key.address.Felt())
	case kindStorage:
		res.storage, res.found, res.err = b.provider.StorageAt(ctx, b.block, key.address.Felt(), key.key.Felt())
	case kindClassHash:
		res.classHash, res.found, res.err = b.provider.ClassHashAt(ctx, b.block, key.address.Felt())
	case kindClass:
		res.class, res.found, res.err = b.provider.ClassAt(ctx, b.block, key.address.Felt())
	case kindCompiledClassHash:
		res.compiledClassHash, res.found, res.err = b.provider.CompiledClassHash(ctx, b.block, key.address.Felt())
	case kindStateRoots:
		res.classesRoot, res.contractsRoot, res.err = b.provider.StateRoots(ctx, b.block)
		res.found = res.err == nil
	}
	if res.err != nil {
		res.err = &kverrors.BackendProviderError{Err: res.err}
	}
	b.completions <- completion{key: key, res: res}
}

// writeThrough applies spec.md §4.9's caching policy: every successful
// fetch is persisted so the next read for the same key never leaves
// the process.
func (b *Backend) writeThrough(key requestKey, res result) error {
	if !res.found {
		return nil
	}
	ctx := context.Background()
	switch key.kind {
	case kindNonce:
		return b.db.Update(ctx, func(tx kv.RwTx) error {
			return b.writeNonce(ctx, tx, key.address.Felt(), res.nonce)
		})
	case kindStorage:
		return b.db.Update(ctx, func(tx kv.RwTx) error {
			return b.writeStorage(tx, key.address.Felt(), key.key.Felt(), res.storage)
		})
	case kindClassHash:
		return b.db.Update(ctx, func(tx kv.RwTx) error {
			return b.writeClassHash(tx, key.address.Felt(), res.classHash)
		})
	case kindClass:
		return b.db.Update(ctx, func(tx kv.RwTx) error {
			encoded, err := classCodecEncode(res.class)
			if err != nil {
				return err
			}
			return tx.Put(tables.Classes, addressBytes(key.address.Felt()), encoded)
		})
	case kindCompiledClassHash:
		return b.db.Update(ctx, func(tx kv.RwTx) error {
			return tx.Put(tables.CompiledClassHashes, addressBytes(key.address.Felt()), feltBytesOf(res.compiledClassHash))
		})
	case kindStateRoots:
		// Nothing to write through: the fetched root answers the reader
		// directly (state/reader/forked.go), and persisting it under the
		// locally-synced trie's own root-pointer row would corrupt that
		// trie's real commit history for an unrelated, not-fully-synced
		// view of the same identifier.
		return nil
	}
	return nil
}

func addressBytes(f *felt.Felt) []byte { b := f.Bytes32(); return b[:] }
func feltBytesOf(f *felt.Felt) []byte  { b := f.Bytes32(); return b[:] }

// writeNonce upholds the invariant that ContractInfo is always complete
// (nonce and class_hash together): per spec.md §4.9, a nonce hit with no
// class hash cached yet first resolves the class hash upstream — a
// second, synchronous provider round trip right here on the actor
// goroutine, before the row is written.
func (b *Backend) writeNonce(ctx context.Context, tx kv.RwTx, address, nonce *felt.Felt) error {
	v, found, err := tx.Get(tables.ContractInfo, addressBytes(address))
	if err != nil {
		return err
	}
	var classHash *felt.Felt
	if found {
		_, classHash, err = writer.DecodeContractInfo(v, address)
		if err != nil {
			return err
		}
	} else {
		classHash, _, err = b.provider.ClassHashAt(ctx, b.block, address)
		if err != nil {
			return fmt.Errorf("fork: resolving class hash for nonce write-through of %s: %w", address.String(), &kverrors.BackendProviderError{Err: err})
		}
	}
	return tx.Put(tables.ContractInfo, addressBytes(address), writer.EncodeContractInfo(nonce, classHash))
}

func (b *Backend) writeClassHash(tx kv.RwTx, address, classHash *felt.Felt) error {
	v, found, err := tx.Get(tables.ContractInfo, addressBytes(address))
	nonce := &felt.Zero
	if err != nil {
		return err
	}
	if found {
		nonce, _, err = writer.DecodeContractInfo(v, address)
		if err != nil {
			return err
		}
	}
	return tx.Put(tables.ContractInfo, addressBytes(address), writer.EncodeContractInfo(nonce, classHash))
}

func (b *Backend) writeStorage(tx kv.RwTx, address, key, value *felt.Felt) error {
	return writer.PutStorageValue(tx, address, key, value)
}

// classCodecEncode persists provider.go's ClassAt result with the same
// encoding kv/codec uses for locally written classes.
func classCodecEncode(c *types.ContractClass) ([]byte, error) {
	return codec.EncodeClass(c)
}
