// Package storage persists normalized records to the configured backend.
// Both writers share one contract: write the batch in backend-sized chunks
// and report how many records were durably accepted. Chunks are independent
// calls with no cross-chunk transaction; a failure in chunk k leaves chunks
// 1..k-1 committed, so ingestion is at-least-once and callers rely on
// idempotent keys to tolerate full-batch resubmission.
package storage

import (
	"context"

	"github.com/chamberlog/chamberlog/internal/model"
)

// Writer is the backend-agnostic persistence contract. The router does not
// know which backend is active.
type Writer interface {
	// WriteTelemetry persists a telemetry batch and returns the number of
	// records accepted before any error.
	WriteTelemetry(ctx context.Context, records []model.TelemetryRecord) (int, error)

	// WriteEvents persists an event batch and returns the number of records
	// accepted before any error.
	WriteEvents(ctx context.Context, records []model.EventRecord) (int, error)
}
