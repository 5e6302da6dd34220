// Package katanacfg holds the maintenance CLI's process configuration:
// the data-directory path and the `~` expansion every path flag in
// SPEC_FULL.md §6.3 runs through before it reaches kv.Env.Open.
package katanacfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the resolved set of inputs cmd/katana-db needs to open a
// storage engine: the on-disk path, already `~`-expanded.
type Config struct {
	Path string
}

// ExpandPath resolves a leading `~` or `~/...` against the current
// user's home directory, per spec.md §6.3's "paths recognise ~
// expansion". Paths without a leading `~` pass through unchanged; this
// is deliberately narrower than full shell tilde expansion (`~other-user`
// is left untouched) since the CLI never runs as another user's shell.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' {
		// "~other-user/..." — not supported, pass through verbatim.
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("katanacfg: resolve home directory: %w", err)
	}
	rest := strings.TrimPrefix(path[1:], "/")
	return filepath.Join(home, rest), nil
}

// Resolve builds a Config from a raw --path flag value, expanding it.
func Resolve(rawPath string) (Config, error) {
	path, err := ExpandPath(rawPath)
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return Config{}, fmt.Errorf("katanacfg: path must not be empty")
	}
	return Config{Path: path}, nil
}
