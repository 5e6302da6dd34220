// Package migrations runs idempotent, version-tolerant upgrades over an
// already-open environment, for schema changes too fine-grained to bump
// lmdbkv.SchemaVersion and refuse to open outright. Grounded on the
// teacher's own migrations.Migrator: walk a bucket of already-applied
// migration names, skip what's recorded, run and record the rest in
// registration order. Idempotency is the caller's responsibility, same
// as the teacher's comment demands of its own Up funcs.
package migrations

import (
	"context"
	"fmt"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/log"
)

// Migration is one named, one-shot upgrade step. Up receives the
// environment and the data directory (for migrations that need to touch
// files alongside the KV store) and must be safe to abort partway
// through: a failed Up leaves its name unrecorded, so the next Apply
// retries it from scratch.
type Migration struct {
	Name string
	Up   func(env kv.Env, dataDir string) error
}

// registered is empty today: this engine's schema has not yet needed a
// post-hoc reshape, unlike the teacher's bucket-format migrations, which
// existed to fix up data that predated a format change. The registry
// stays wired through Migrator.Apply so the first migration this engine
// ever needs has a home instead of growing an ad hoc one-off script.
var registered []Migration

// Migrator runs a fixed, ordered list of migrations against an
// environment, skipping any already recorded as applied.
type Migrator struct {
	Migrations []Migration
}

// NewMigrator returns a Migrator over the package's registered migrations.
func NewMigrator() *Migrator {
	return &Migrator{Migrations: registered}
}

// Apply runs every migration not yet recorded as applied, in order,
// recording each one's name in tables.Migrations immediately after its
// Up returns successfully. A failure aborts Apply without recording the
// failing migration, so it is retried on the next Apply call.
func (m *Migrator) Apply(ctx context.Context, env kv.Env, dataDir string) error {
	if len(m.Migrations) == 0 {
		return nil
	}

	applied := map[string]bool{}
	if err := env.View(ctx, func(tx kv.RoTx) error {
		c, err := tx.Cursor(tables.Migrations)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			applied[string(k)] = true
		}
		return nil
	}); err != nil {
		return fmt.Errorf("migrations: list applied: %w", err)
	}

	for _, mig := range m.Migrations {
		if applied[mig.Name] {
			continue
		}

		log.Info("apply migration", "name", mig.Name)
		if err := mig.Up(env, dataDir); err != nil {
			return fmt.Errorf("migrations: %s: %w", mig.Name, err)
		}

		if err := env.Update(ctx, func(tx kv.RwTx) error {
			return tx.Put(tables.Migrations, []byte(mig.Name), []byte{1})
		}); err != nil {
			return fmt.Errorf("migrations: %s: record applied: %w", mig.Name, err)
		}
		log.Info("applied migration", "name", mig.Name)
	}
	return nil
}
