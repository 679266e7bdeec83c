package ingest

import (
	"github.com/valyala/fastjson"

	"github.com/chamberlog/chamberlog/internal/model"
)

// NormalizeTelemetry converts a batch of raw telemetry objects into
// normalized records, preserving input order. Records whose timestamp cannot
// be resolved are dropped; callers detect drops by comparing the accepted
// count against the submitted count.
func NormalizeTelemetry(deviceID string, records []*fastjson.Value) []model.TelemetryRecord {
	out := make([]model.TelemetryRecord, 0, len(records))
	for _, rec := range records {
		ms := TelemetryTime(rec)
		if ms <= 0 {
			continue
		}
		out = append(out, model.TelemetryRecord{
			DeviceID:  deviceID,
			RunFile:   stringOr(rec, "run_file", "unknown"),
			LineIndex: ToInt(rec.Get("line_index"), 0),
			Step:      stringOr(rec, "step", "-"),
			Mask:      ToInt(rec.Get("mask"), 0),
			T1:        ToFloat(rec.Get("t1"), 0),
			U1:        ToFloat(rec.Get("u1"), 0),
			T2:        ToFloat(rec.Get("t2"), 0),
			U2:        ToFloat(rec.Get("u2"), 0),
			TAvg:      ToFloat(rec.Get("tavg"), 0),
			UAvg:      ToFloat(rec.Get("uavg"), 0),
			RtcISO:    ToString(rec.Get("rtc_iso"), ""),
			SdState:   stringOr(rec, "sd_state", "unknown"),
			RtcState:  stringOr(rec, "rtc_state", "unknown"),
			RunState:  stringOr(rec, "run_state", "unknown"),
			TimeMs:    ms,
		})
	}
	return out
}

// NormalizeEvents converts a batch of raw event objects into normalized
// records, preserving input order. Events are never dropped: the timestamp
// fallback chain always resolves.
func NormalizeEvents(deviceID string, records []*fastjson.Value) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(records))
	for i, rec := range records {
		ms, seq := EventTime(rec, i+1)
		out = append(out, model.EventRecord{
			DeviceID:    deviceID,
			RunFile:     stringOr(rec, "run_file", "unknown"),
			EventType:   stringOr(rec, "event_type", "evt"),
			Screen:      stringOr(rec, "screen", "unknown"),
			Arg0:        ToInt(rec.Get("arg0"), 0),
			Arg1:        ToInt(rec.Get("arg1"), 0),
			CurrentStep: ToInt(rec.Get("current_step"), 0),
			RtcISO:      ToString(rec.Get("rtc_iso"), ""),
			TimeMs:      ms,
			Sequence:    seq,
		})
	}
	return out
}

// stringOr coerces a field to string, substituting def for missing, invalid
// or empty values.
func stringOr(rec *fastjson.Value, field, def string) string {
	s := ToString(rec.Get(field), "")
	if s == "" {
		return def
	}
	return s
}
