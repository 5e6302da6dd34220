package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/tables"
)

func TestRecordTableStatsSetsGauges(t *testing.T) {
	RecordTableStats(kv.EnvStats{
		Tables: map[tables.Name]kv.TableStats{
			tables.Headers: {Entries: 7, TotalSize: 4096},
		},
		Freelist: 3,
	})

	require.Equal(t, float64(7), testutil.ToFloat64(tableEntries.WithLabelValues(string(tables.Headers))))
	require.Equal(t, float64(4096), testutil.ToFloat64(tableTotalSize.WithLabelValues(string(tables.Headers))))
	require.Equal(t, float64(3), testutil.ToFloat64(freelistPages))
}

func TestRecordPruneRunIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(pruneRunsTotal.WithLabelValues("keep_last"))

	RecordPruneRun("keep_last", map[tables.Name]uint64{
		tables.ClassesTrieHistory: 5,
	})

	require.Equal(t, before+1, testutil.ToFloat64(pruneRunsTotal.WithLabelValues("keep_last")))
	require.Equal(t, float64(5), testutil.ToFloat64(pruneRowsRemovedTotal.WithLabelValues(string(tables.ClassesTrieHistory))))
}
