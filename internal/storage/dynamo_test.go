package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamberlog/chamberlog/internal/model"
)

// fakeDynamo records calls, optionally failing or returning a number of
// unprocessed items on chosen calls.
type fakeDynamo struct {
	calls         []*dynamodb.BatchWriteItemInput
	failOn        int
	unprocessedOn map[int]int // call number -> how many items to bounce
	stored        map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		unprocessedOn: map[int]int{},
		stored:        map[string]map[string]types.AttributeValue{},
	}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["device_id"].(*types.AttributeValueMemberS).Value
	sk := item["sk"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.calls = append(f.calls, params)
	call := len(f.calls)
	if f.failOn > 0 && call == f.failOn {
		return nil, errors.New("provisioned throughput exceeded")
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range params.RequestItems {
		bounce := f.unprocessedOn[call]
		for i, req := range reqs {
			if i < len(reqs)-bounce {
				f.stored[itemKey(req.PutRequest.Item)] = req.PutRequest.Item
				continue
			}
			out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
		}
	}
	return out, nil
}

func eventBatch(n int) []model.EventRecord {
	records := make([]model.EventRecord, n)
	for i := range records {
		records[i] = model.EventRecord{
			DeviceID:  "dev1",
			RunFile:   "r1",
			EventType: "evt",
			Screen:    "main",
			TimeMs:    1700000000000 + int64(i),
			Sequence:  i + 1,
		}
	}
	return records
}

func TestDynamoChunking(t *testing.T) {
	fake := newFakeDynamo()
	w := NewDynamoWriter(fake, "telemetry", "events")

	accepted, err := w.WriteEvents(context.Background(), eventBatch(60))
	require.NoError(t, err)
	assert.Equal(t, 60, accepted)

	// 60 items, 25 per physical call
	require.Len(t, fake.calls, 3)
	assert.Len(t, fake.calls[0].RequestItems["events"], 25)
	assert.Len(t, fake.calls[1].RequestItems["events"], 25)
	assert.Len(t, fake.calls[2].RequestItems["events"], 10)
	assert.Len(t, fake.stored, 60)
}

func TestDynamoInChunkCollisionKeepsLater(t *testing.T) {
	fake := newFakeDynamo()
	w := NewDynamoWriter(fake, "telemetry", "events")

	a := model.TelemetryRecord{DeviceID: "dev1", RunFile: "r1", LineIndex: 5, TimeMs: 1700000000000, T1: 20}
	b := a
	b.T1 = 21

	accepted, err := w.WriteTelemetry(context.Background(), []model.TelemetryRecord{a, b})
	require.NoError(t, err)
	// both records are accepted, but they are the same key: one item is
	// submitted and the later record's values survive
	assert.Equal(t, 2, accepted)
	require.Len(t, fake.calls, 1)
	require.Len(t, fake.calls[0].RequestItems["telemetry"], 1)

	require.Len(t, fake.stored, 1)
	for _, item := range fake.stored {
		assert.Equal(t, "21", item["t1"].(*types.AttributeValueMemberN).Value)
	}
}

func TestDynamoIdempotentResubmission(t *testing.T) {
	fake := newFakeDynamo()
	w := NewDynamoWriter(fake, "telemetry", "events")

	batch := eventBatch(10)
	_, err := w.WriteEvents(context.Background(), batch)
	require.NoError(t, err)
	firstSize := len(fake.stored)

	// resubmitting the identical batch overwrites, never duplicates
	_, err = w.WriteEvents(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, firstSize, len(fake.stored))
}

func TestDynamoUnprocessedItemsResubmitted(t *testing.T) {
	fake := newFakeDynamo()
	fake.unprocessedOn[1] = 4
	w := NewDynamoWriter(fake, "telemetry", "events")

	accepted, err := w.WriteEvents(context.Background(), eventBatch(10))
	require.NoError(t, err)
	assert.Equal(t, 10, accepted)
	// second call carries only the bounced leftovers
	require.Len(t, fake.calls, 2)
	assert.Len(t, fake.calls[1].RequestItems["events"], 4)
	assert.Len(t, fake.stored, 10)
}

func TestDynamoUnprocessedItemsExhaustRounds(t *testing.T) {
	fake := newFakeDynamo()
	// bounce something on every round
	fake.unprocessedOn[1] = 4
	fake.unprocessedOn[2] = 2
	fake.unprocessedOn[3] = 1
	w := NewDynamoWriter(fake, "telemetry", "events")

	accepted, err := w.WriteEvents(context.Background(), eventBatch(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprocessed")
	assert.Equal(t, 0, accepted)
	assert.Len(t, fake.calls, 3)
}

func TestDynamoBackendErrorKeepsPriorChunks(t *testing.T) {
	fake := newFakeDynamo()
	fake.failOn = 2
	w := NewDynamoWriter(fake, "telemetry", "events")

	accepted, err := w.WriteEvents(context.Background(), eventBatch(30))
	require.Error(t, err)
	assert.Equal(t, 25, accepted)
	assert.Len(t, fake.stored, 25)
}

func TestDynamoItemShapeAndTTL(t *testing.T) {
	fake := newFakeDynamo()
	w := NewDynamoWriter(fake, "telemetry", "events")

	rec := model.TelemetryRecord{
		DeviceID:  "dev1",
		RunFile:   "r1",
		LineIndex: 5,
		Step:      "-",
		T1:        21.3,
		SdState:   "ok",
		TimeMs:    1700000000000,
	}
	_, err := w.WriteTelemetry(context.Background(), []model.TelemetryRecord{rec})
	require.NoError(t, err)
	require.Len(t, fake.stored, 1)

	item := fake.stored["dev1|1700000000000#r1#00000005"]
	require.NotNil(t, item, "item keyed by device_id and sort key")
	assert.Equal(t, "r1", item["run_file"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1700000000000", item["time_ms"].(*types.AttributeValueMemberN).Value)

	wantExpire := time.UnixMilli(1700000000000).Add(365 * 24 * time.Hour).Unix()
	assert.Equal(t, wantExpire, mustInt64(t, item["expire_at"]))
}

func mustInt64(t *testing.T, av types.AttributeValue) int64 {
	t.Helper()
	n, ok := av.(*types.AttributeValueMemberN)
	require.True(t, ok)
	v, err := strconv.ParseInt(n.Value, 10, 64)
	require.NoError(t, err)
	return v
}
