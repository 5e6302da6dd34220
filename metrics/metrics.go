// Package metrics exposes the counters and gauges this engine keeps for
// itself: table sizes and prune-run outcomes. Grounded on the teacher's
// own registered-metric idiom (common/dbutils/bucket.go's
// metrics.NewRegisteredCounter vars), realized here with
// github.com/prometheus/client_golang — already a direct dependency in
// the teacher's go.mod — instead of go-ethereum's own metrics package,
// which the retrieval pack never brought in as a directory. Nothing in
// this package's scope serves these metrics over HTTP: telemetry
// *serving* is out of scope, but the counters themselves are real and
// updated by prune and by the `db stats` command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/tables"
)

// Registry is the process-wide collector set, separate from
// prometheus.DefaultRegisterer so opening a second environment in the
// same process (as tests do) never panics on a duplicate registration.
var Registry = prometheus.NewRegistry()

var (
	tableEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "katana",
		Subsystem: "db",
		Name:      "table_entries",
		Help:      "Row count of each table, as last reported by Env.Stats.",
	}, []string{"table"})

	tableTotalSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "katana",
		Subsystem: "db",
		Name:      "table_bytes",
		Help:      "On-disk byte size of each table, as last reported by Env.Stats.",
	}, []string{"table"})

	freelistPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "katana",
		Subsystem: "db",
		Name:      "freelist_pages",
		Help:      "Free page count of the environment, as last reported by Env.Stats.",
	})

	pruneRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "prune",
		Name:      "runs_total",
		Help:      "Completed prune runs, labeled by mode (latest/keep_last).",
	}, []string{"mode"})

	pruneRowsRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "prune",
		Name:      "rows_removed_total",
		Help:      "Rows removed by prune runs, labeled by table.",
	}, []string{"table"})
)

func init() {
	Registry.MustRegister(tableEntries, tableTotalSize, freelistPages, pruneRunsTotal, pruneRowsRemovedTotal)
}

// RecordTableStats updates the table-size gauges from a fresh
// kv.EnvStats snapshot, the same shape db stats (SPEC_FULL.md §6.3)
// already renders.
func RecordTableStats(stats kv.EnvStats) {
	for table, ts := range stats.Tables {
		tableEntries.WithLabelValues(string(table)).Set(float64(ts.Entries))
		tableTotalSize.WithLabelValues(string(table)).Set(float64(ts.TotalSize))
	}
	freelistPages.Set(float64(stats.Freelist))
}

// RecordPruneRun increments the prune-run counter for mode and adds each
// table's removed-row count to the cumulative total.
func RecordPruneRun(mode string, removed map[tables.Name]uint64) {
	pruneRunsTotal.WithLabelValues(mode).Inc()
	for table, n := range removed {
		pruneRowsRemovedTotal.WithLabelValues(string(table)).Add(float64(n))
	}
}
