package storage

import (
	"context"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/chamberlog/chamberlog/internal/ingest"
	"github.com/chamberlog/chamberlog/internal/model"
)

const (
	// dynamoMaxBatch is the BatchWriteItem per-call item limit.
	dynamoMaxBatch = 25

	// retention is how long items live before the table's TTL sweep removes
	// them, counted from the record's own time.
	retention = 365 * 24 * time.Hour

	// unprocessedRounds bounds resubmission of items DynamoDB returns as
	// unprocessed under throttling. This is SDK-level delivery, not a retry
	// policy; a chunk still unprocessed after these rounds fails the batch.
	unprocessedRounds = 3
)

// DynamoAPI is the slice of the DynamoDB client the writer needs.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoWriter persists records as items keyed by (device_id, sort key).
// Two records with an identical key are the same item: the later record in
// the batch wins, which deduplicates device resends. BatchWriteItem rejects
// rather than deduplicates duplicate keys in one call, so the writer folds
// in-chunk collisions client side before submitting.
type DynamoWriter struct {
	client         DynamoAPI
	telemetryTable string
	eventTable     string
	now            func() time.Time
}

func NewDynamoWriter(client DynamoAPI, telemetryTable, eventTable string) *DynamoWriter {
	return &DynamoWriter{
		client:         client,
		telemetryTable: telemetryTable,
		eventTable:     eventTable,
		now:            time.Now,
	}
}

type telemetryItem struct {
	DeviceID  string  `dynamodbav:"device_id"`
	SortKey   string  `dynamodbav:"sk"`
	RunFile   string  `dynamodbav:"run_file"`
	LineIndex int     `dynamodbav:"line_index"`
	Step      string  `dynamodbav:"step"`
	Mask      int     `dynamodbav:"mask"`
	T1        float64 `dynamodbav:"t1"`
	U1        float64 `dynamodbav:"u1"`
	T2        float64 `dynamodbav:"t2"`
	U2        float64 `dynamodbav:"u2"`
	TAvg      float64 `dynamodbav:"tavg"`
	UAvg      float64 `dynamodbav:"uavg"`
	RtcISO    string  `dynamodbav:"rtc_iso"`
	SdState   string  `dynamodbav:"sd_state"`
	RtcState  string  `dynamodbav:"rtc_state"`
	RunState  string  `dynamodbav:"run_state"`
	TimeMs    int64   `dynamodbav:"time_ms"`
	ExpireAt  int64   `dynamodbav:"expire_at"`
}

type eventItem struct {
	DeviceID    string `dynamodbav:"device_id"`
	SortKey     string `dynamodbav:"sk"`
	RunFile     string `dynamodbav:"run_file"`
	EventType   string `dynamodbav:"event_type"`
	Screen      string `dynamodbav:"screen"`
	Arg0        int    `dynamodbav:"arg0"`
	Arg1        int    `dynamodbav:"arg1"`
	CurrentStep int    `dynamodbav:"current_step"`
	RtcISO      string `dynamodbav:"rtc_iso"`
	TimeMs      int64  `dynamodbav:"time_ms"`
	Sequence    int    `dynamodbav:"sequence"`
	ExpireAt    int64  `dynamodbav:"expire_at"`
}

// keyedItem pairs a marshalled item with its primary key for in-chunk
// collision folding.
type keyedItem struct {
	key  string
	item map[string]types.AttributeValue
}

func (w *DynamoWriter) WriteTelemetry(ctx context.Context, records []model.TelemetryRecord) (int, error) {
	keyed := make([]keyedItem, len(records))
	for i, r := range records {
		sk := ingest.TelemetrySortKey(r)
		item, err := attributevalue.MarshalMap(telemetryItem{
			DeviceID:  r.DeviceID,
			SortKey:   sk,
			RunFile:   r.RunFile,
			LineIndex: r.LineIndex,
			Step:      r.Step,
			Mask:      r.Mask,
			T1:        r.T1,
			U1:        r.U1,
			T2:        r.T2,
			U2:        r.U2,
			TAvg:      r.TAvg,
			UAvg:      r.UAvg,
			RtcISO:    r.RtcISO,
			SdState:   r.SdState,
			RtcState:  r.RtcState,
			RunState:  r.RunState,
			TimeMs:    r.TimeMs,
			ExpireAt:  w.expireAt(r.TimeMs),
		})
		if err != nil {
			return 0, errors.Wrap(err, "marshal telemetry item")
		}
		keyed[i] = keyedItem{key: r.DeviceID + "|" + sk, item: item}
	}
	return w.putAll(ctx, w.telemetryTable, keyed)
}

func (w *DynamoWriter) WriteEvents(ctx context.Context, records []model.EventRecord) (int, error) {
	keyed := make([]keyedItem, len(records))
	for i, r := range records {
		sk := ingest.EventSortKey(r)
		item, err := attributevalue.MarshalMap(eventItem{
			DeviceID:    r.DeviceID,
			SortKey:     sk,
			RunFile:     r.RunFile,
			EventType:   r.EventType,
			Screen:      r.Screen,
			Arg0:        r.Arg0,
			Arg1:        r.Arg1,
			CurrentStep: r.CurrentStep,
			RtcISO:      r.RtcISO,
			TimeMs:      r.TimeMs,
			Sequence:    r.Sequence,
			ExpireAt:    w.expireAt(r.TimeMs),
		})
		if err != nil {
			return 0, errors.Wrap(err, "marshal event item")
		}
		keyed[i] = keyedItem{key: r.DeviceID + "|" + sk, item: item}
	}
	return w.putAll(ctx, w.eventTable, keyed)
}

// putAll writes the items in chunks, folding same-key items within a chunk so
// the later record wins, and resubmitting unprocessed leftovers a bounded
// number of times.
func (w *DynamoWriter) putAll(ctx context.Context, table string, keyed []keyedItem) (int, error) {
	accepted := 0
	for chunk := range slices.Chunk(keyed, dynamoMaxBatch) {
		pos := make(map[string]int, len(chunk))
		reqs := make([]types.WriteRequest, 0, len(chunk))
		for _, ki := range chunk {
			if i, ok := pos[ki.key]; ok {
				reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: ki.item}}
				continue
			}
			pos[ki.key] = len(reqs)
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: ki.item}})
		}

		pending := map[string][]types.WriteRequest{table: reqs}
		for round := 0; len(pending[table]) > 0; round++ {
			if round >= unprocessedRounds {
				return accepted, errors.Errorf("dynamodb batch write to %s: %d items unprocessed after %d rounds", table, len(pending[table]), unprocessedRounds)
			}
			out, err := w.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return accepted, errors.Wrapf(err, "dynamodb batch write to %s", table)
			}
			pending = out.UnprocessedItems
		}
		// every record in the chunk is represented in storage; folded
		// duplicates were superseded by the later record
		accepted += len(chunk)
	}
	return accepted, nil
}

// expireAt computes the TTL epoch seconds for a record. Normalized records
// always carry a positive time; unset times fall back to now.
func (w *DynamoWriter) expireAt(timeMs int64) int64 {
	base := time.UnixMilli(timeMs)
	if timeMs <= 0 {
		base = w.now()
	}
	return base.Add(retention).Unix()
}
