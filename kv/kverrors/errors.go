// Package kverrors declares the sentinel error taxonomy shared by the
// storage engine (SPEC_FULL.md §7), wrapped with context via fmt.Errorf
// and unwrapped with errors.Is/errors.As — the teacher's own idiom
// throughout ethdb and migrations, never a bespoke panic scheme.
package kverrors

import "errors"

var (
	ErrIo                        = errors.New("io error")
	ErrCodec                     = errors.New("codec error")
	ErrVersionMismatch           = errors.New("version mismatch")
	ErrNotFound                  = errors.New("not found")
	ErrMapFull                   = errors.New("map full")
	ErrTrieProofMissing          = errors.New("trie proof missing")
	ErrBackendOutOfRange         = errors.New("backend: block out of range")
	ErrBackendUnexpectedPending  = errors.New("backend: unexpected pending block")
	ErrBackendChannelClosed      = errors.New("backend: channel closed")
	ErrBackendFailedReceiveResult = errors.New("backend: failed to receive result")
	ErrValidation                = errors.New("validation error")
	ErrAlreadyInitialized        = errors.New("already initialized")
	ErrMissingContractClassHash  = errors.New("missing contract class hash")
	ErrMissingContractNonce      = errors.New("missing contract nonce")
)

// BackendProviderError wraps a transport-level failure from the forked
// backend's upstream RPC provider. Go errors are immutable values, so
// sharing one across every dedup waiter needs no atomic-refcount wrapper
// (contrast the source's Arc<ProviderError>) — this is the Go-idiomatic
// realization of spec.md §4.9's "wrapped in Arc" requirement.
type BackendProviderError struct {
	Err error
}

func (e *BackendProviderError) Error() string { return "backend: provider: " + e.Err.Error() }
func (e *BackendProviderError) Unwrap() error { return e.Err }
