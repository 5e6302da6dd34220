// Package fork implements SPEC_FULL.md §4.9: a thread-owned actor that
// backs reads missing from local storage by calling a remote Starknet
// JSON-RPC node pinned to one block, then writes the result through to
// local KV so subsequent reads stay local. Grounded on the teacher's
// retry/backoff idiom as carried by cemabi33-juno's clients/feeder.Client
// (exponential backoff, context cancellation, net/http.Client), here
// generalized from feeder-gateway REST endpoints to JSON-RPC 2.0 calls.
package fork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
)

// Backoff computes the next wait duration given the previous one.
type Backoff func(wait time.Duration) time.Duration

func ExponentialBackoff(wait time.Duration) time.Duration { return wait * 2 }

func NopBackoff(time.Duration) time.Duration { return 0 }

// Starknet JSON-RPC error codes that map to the "absent is None"
// convention rather than a transport failure (spec.md §4.9).
const (
	rpcErrContractNotFound = 20
	rpcErrClassHashNotFound = 28
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type notFoundError struct{ code int }

func (e *notFoundError) Error() string { return fmt.Sprintf("rpc: not found (code %d)", e.code) }

func isNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}

// Provider is a minimal JSON-RPC 2.0 client against one Starknet node.
type Provider struct {
	url        string
	client     *http.Client
	backoff    Backoff
	maxRetries int
	maxWait    time.Duration
	minWait    time.Duration
	nextID     int64
}

func NewProvider(url string) *Provider {
	return &Provider{
		url:        url,
		client:     http.DefaultClient,
		backoff:    ExponentialBackoff,
		maxRetries: 5,
		maxWait:    10 * time.Second,
		minWait:    200 * time.Millisecond,
	}
}

func (p *Provider) WithHTTPClient(c *http.Client) *Provider { p.client = c; return p }
func (p *Provider) WithBackoff(b Backoff) *Provider         { p.backoff = b; return p }
func (p *Provider) WithMaxRetries(n int) *Provider          { p.maxRetries = n; return p }

// call performs one JSON-RPC request, retrying transport and non-2xx
// failures with backoff. An RPC-level "not found" error short-circuits
// the retry loop and is reported to the caller via isNotFound, never
// retried — the node has already answered, just in the negative.
func (p *Provider) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&p.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	var lastErr error
	wait := time.Duration(0)
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		res, doErr := p.client.Do(req)
		if doErr != nil {
			lastErr = doErr
		} else {
			var rpcRes rpcResponse
			decErr := json.NewDecoder(res.Body).Decode(&rpcRes)
			res.Body.Close()
			switch {
			case decErr != nil:
				lastErr = decErr
			case rpcRes.Error != nil:
				if rpcRes.Error.Code == rpcErrContractNotFound || rpcRes.Error.Code == rpcErrClassHashNotFound {
					return &notFoundError{code: rpcRes.Error.Code}
				}
				lastErr = fmt.Errorf("rpc: %s (code %d)", rpcRes.Error.Message, rpcRes.Error.Code)
			default:
				if out == nil {
					return nil
				}
				return json.Unmarshal(rpcRes.Result, out)
			}
		}

		if wait < p.minWait {
			wait = p.minWait
		}
		wait = p.backoff(wait)
		if wait > p.maxWait {
			wait = p.maxWait
		}
	}
	return lastErr
}

// BlockID names the one block every request in a forked session is
// pinned to (spec.md §4.9).
type BlockID struct {
	Number *uint64
	Hash   *felt.Felt
}

func BlockIDByNumber(n uint64) BlockID { return BlockID{Number: &n} }
func BlockIDByHash(h *felt.Felt) BlockID { return BlockID{Hash: h} }

func (b BlockID) MarshalJSON() ([]byte, error) {
	switch {
	case b.Hash != nil:
		return json.Marshal(struct {
			BlockHash string `json:"block_hash"`
		}{b.Hash.String()})
	case b.Number != nil:
		return json.Marshal(struct {
			BlockNumber uint64 `json:"block_number"`
		}{*b.Number})
	default:
		return json.Marshal("latest")
	}
}

func (p *Provider) Nonce(ctx context.Context, block BlockID, address *felt.Felt) (*felt.Felt, bool, error) {
	var result string
	err := p.call(ctx, "starknet_getNonce", []any{block, address.String()}, &result)
	if isNotFound(err) {
		return &felt.Zero, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f, err := felt.FromHex(result)
	if err != nil {
		return nil, false, fmt.Errorf("fork: decode nonce: %w", err)
	}
	return f, true, nil
}

func (p *Provider) StorageAt(ctx context.Context, block BlockID, address, key *felt.Felt) (*felt.Felt, bool, error) {
	var result string
	err := p.call(ctx, "starknet_getStorageAt", []any{address.String(), key.String(), block}, &result)
	if isNotFound(err) {
		return &felt.Zero, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f, err := felt.FromHex(result)
	if err != nil {
		return nil, false, fmt.Errorf("fork: decode storage value: %w", err)
	}
	return f, true, nil
}

func (p *Provider) ClassHashAt(ctx context.Context, block BlockID, address *felt.Felt) (*felt.Felt, bool, error) {
	var result string
	err := p.call(ctx, "starknet_getClassHashAt", []any{block, address.String()}, &result)
	if isNotFound(err) {
		return &felt.Zero, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f, err := felt.FromHex(result)
	if err != nil {
		return nil, false, fmt.Errorf("fork: decode class hash: %w", err)
	}
	return f, true, nil
}

func (p *Provider) CompiledClassHash(ctx context.Context, block BlockID, classHash *felt.Felt) (*felt.Felt, bool, error) {
	var result string
	err := p.call(ctx, "starknet_getCompiledClassHash", []any{block, classHash.String()}, &result)
	if isNotFound(err) {
		return &felt.Zero, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f, err := felt.FromHex(result)
	if err != nil {
		return nil, false, fmt.Errorf("fork: decode compiled class hash: %w", err)
	}
	return f, true, nil
}

// StateRoots fetches the global classes/contracts trie roots the
// upstream node commits to at block, via starknet_getStorageProof
// (Starknet JSON-RPC's Merkle-proof endpoint) — requested with empty
// key sets, it still returns global_roots, the two root hashes this
// engine composes into its own compound state root (spec.md §4.6,
// §8 property 7).
func (p *Provider) StateRoots(ctx context.Context, block BlockID) (classesRoot, contractsRoot *felt.Felt, err error) {
	var result struct {
		GlobalRoots struct {
			ContractsTreeRoot string `json:"contracts_tree_root"`
			ClassesTreeRoot   string `json:"classes_tree_root"`
		} `json:"global_roots"`
	}
	params := map[string]any{
		"block_id":               block,
		"class_hashes":           []string{},
		"contract_addresses":     []string{},
		"contracts_storage_keys": []any{},
	}
	if err := p.call(ctx, "starknet_getStorageProof", []any{params}, &result); err != nil {
		return nil, nil, err
	}
	classesRoot, err = felt.FromHex(result.GlobalRoots.ClassesTreeRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("fork: decode classes root: %w", err)
	}
	contractsRoot, err = felt.FromHex(result.GlobalRoots.ContractsTreeRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("fork: decode contracts root: %w", err)
	}
	return classesRoot, contractsRoot, nil
}

// wireEntryPoint and wireClass decode the JSON-RPC class-definition
// shape (starknet_getClass) into the domain ContractClass type.
type wireEntryPoint struct {
	Selector    string `json:"selector"`
	Offset      string `json:"offset"`
	FunctionIdx uint64 `json:"function_idx"`
}

type wireSierraEntryPoints struct {
	Constructor []wireEntryPoint `json:"CONSTRUCTOR"`
	External    []wireEntryPoint `json:"EXTERNAL"`
	L1Handler   []wireEntryPoint `json:"L1_HANDLER"`
}

type wireLegacyEntryPoints struct {
	Constructor []wireEntryPoint `json:"CONSTRUCTOR"`
	External    []wireEntryPoint `json:"EXTERNAL"`
	L1Handler   []wireEntryPoint `json:"L1_HANDLER"`
}

type wireClass struct {
	Program              string                `json:"program"`
	EntryPointsByType    wireLegacyEntryPoints `json:"entry_points_by_type"`
	SierraProgram        []string              `json:"sierra_program"`
	ContractClassVersion string                `json:"contract_class_version"`
	EntryPoints          wireSierraEntryPoints `json:"entry_points_by_type_sierra"`
	ABI                  string                `json:"abi"`
}

func decodeEntryPoints(in []wireEntryPoint) ([]types.SierraEntryPoint, error) {
	out := make([]types.SierraEntryPoint, 0, len(in))
	for _, e := range in {
		sel, err := felt.FromHex(e.Selector)
		if err != nil {
			return nil, err
		}
		out = append(out, types.SierraEntryPoint{Selector: sel, FunctionIdx: e.FunctionIdx})
	}
	return out, nil
}

func decodeLegacyEntryPoints(in []wireEntryPoint) ([]types.LegacyEntryPoint, error) {
	out := make([]types.LegacyEntryPoint, 0, len(in))
	for _, e := range in {
		sel, err := felt.FromHex(e.Selector)
		if err != nil {
			return nil, err
		}
		offset, err := strconv.ParseUint(strings.TrimPrefix(e.Offset, "0x"), 16, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, types.LegacyEntryPoint{Selector: sel, Offset: offset})
	}
	return out, nil
}

func (w wireClass) toDomain() (*types.ContractClass, error) {
	if len(w.SierraProgram) > 0 {
		program := make([]*felt.Felt, 0, len(w.SierraProgram))
		for _, s := range w.SierraProgram {
			f, err := felt.FromHex(s)
			if err != nil {
				return nil, err
			}
			program = append(program, f)
		}
		ctor, err := decodeEntryPoints(w.EntryPoints.Constructor)
		if err != nil {
			return nil, err
		}
		ext, err := decodeEntryPoints(w.EntryPoints.External)
		if err != nil {
			return nil, err
		}
		l1h, err := decodeEntryPoints(w.EntryPoints.L1Handler)
		if err != nil {
			return nil, err
		}
		return &types.ContractClass{
			Kind:                 types.ClassKindSierra,
			SierraProgram:        program,
			ContractClassVersion: w.ContractClassVersion,
			EntryPoints:          types.SierraEntryPoints{Constructor: ctor, External: ext, L1Handler: l1h},
			ABI:                  w.ABI,
		}, nil
	}

	ctor, err := decodeLegacyEntryPoints(w.EntryPointsByType.Constructor)
	if err != nil {
		return nil, err
	}
	ext, err := decodeLegacyEntryPoints(w.EntryPointsByType.External)
	if err != nil {
		return nil, err
	}
	l1h, err := decodeLegacyEntryPoints(w.EntryPointsByType.L1Handler)
	if err != nil {
		return nil, err
	}
	return &types.ContractClass{
		Kind:    types.ClassKindLegacy,
		Program: []byte(w.Program),
		EntryPointsByType: map[string][]types.LegacyEntryPoint{
			"CONSTRUCTOR": ctor,
			"EXTERNAL":    ext,
			"L1_HANDLER":  l1h,
		},
	}, nil
}

func (p *Provider) ClassAt(ctx context.Context, block BlockID, classHash *felt.Felt) (*types.ContractClass, bool, error) {
	var wc wireClass
	err := p.call(ctx, "starknet_getClass", []any{block, classHash.String()}, &wc)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c, err := wc.toDomain()
	if err != nil {
		return nil, false, fmt.Errorf("fork: decode class: %w", err)
	}
	return c, true, nil
}
