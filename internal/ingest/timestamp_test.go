package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fastjson"
)

func parseRecord(t *testing.T, doc string) *fastjson.Value {
	t.Helper()
	v, err := fastjson.Parse(doc)
	if err != nil {
		t.Fatalf("parse %q: %v", doc, err)
	}
	return v
}

func TestTelemetryTime(t *testing.T) {
	tests := []struct {
		doc  string
		want int64
	}{
		{`{"ms": 1700000000000}`, 1700000000000},
		{`{"ms": "1700000000000"}`, 1700000000000},
		{`{"ms": 0}`, 0},
		{`{"ms": -5}`, -5},
		{`{"ms": "bad"}`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		got := TelemetryTime(parseRecord(t, tt.doc))
		assert.Equal(t, tt.want, got, "doc %s", tt.doc)
	}
}

func TestEventTime(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		batchPos int
		wantMs   int64
		wantSeq  int
	}{
		{
			name:     "device ms wins",
			doc:      `{"ms": 1700000000000, "rtc_iso": "2020-01-01T00:00:00Z", "line_index": 7}`,
			batchPos: 1,
			wantMs:   1700000000000,
			wantSeq:  7,
		},
		{
			name:     "rtc with zulu suffix",
			doc:      `{"rtc_iso": "2023-11-14T22:13:20Z", "line_index": 3}`,
			batchPos: 1,
			wantMs:   1700000000000,
			wantSeq:  3,
		},
		{
			name:     "naive rtc assumed utc",
			doc:      `{"rtc_iso": "2023-11-14T22:13:20"}`,
			batchPos: 2,
			wantMs:   1700000000000,
			wantSeq:  2,
		},
		{
			name:     "unparseable rtc falls through to line index",
			doc:      `{"rtc_iso": "not-a-time", "line_index": 12}`,
			batchPos: 1,
			wantMs:   12000,
			wantSeq:  12,
		},
		{
			name:     "current step seconds",
			doc:      `{"current_step": 9}`,
			batchPos: 4,
			wantMs:   9000,
			wantSeq:  4,
		},
		{
			// worst case: no time signal at all, the batch position alone
			// still yields a positive, ordered time
			name:     "batch position is the last resort",
			doc:      `{"event_type": "boot"}`,
			batchPos: 5,
			wantMs:   5000,
			wantSeq:  5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, seq := EventTime(parseRecord(t, tt.doc), tt.batchPos)
			assert.Equal(t, tt.wantMs, ms)
			assert.Equal(t, tt.wantSeq, seq)
			assert.Greater(t, ms, int64(0), "event time must always resolve")
		})
	}
}
