package ingest

import (
	"fmt"

	"github.com/chamberlog/chamberlog/internal/model"
)

// Sort keys order items lexicographically by time, then run file (and event
// type), then sequence, within one device partition. The padding widths are
// part of the storage contract: 13 digits hold epoch milliseconds until
// roughly year 2286, 8 digits hold line/sequence counters.
//
// Records sharing every key component collapse to one stored item
// (last-write-wins); that is deliberate deduplication of device resends, not
// a collision bug.

// TelemetrySortKey builds the range key for one telemetry record.
func TelemetrySortKey(r model.TelemetryRecord) string {
	return fmt.Sprintf("%013d#%s#%08d", r.TimeMs, r.RunFile, r.LineIndex)
}

// EventSortKey builds the range key for one event record.
func EventSortKey(r model.EventRecord) string {
	return fmt.Sprintf("%013d#%s#%s#%08d", r.TimeMs, r.RunFile, r.EventType, r.Sequence)
}
