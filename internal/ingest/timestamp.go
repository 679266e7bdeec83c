package ingest

import (
	"time"

	"github.com/valyala/fastjson"
)

// rtcLayouts are tried in order when parsing the device RTC string. The RTC
// either reports UTC with a Z suffix or a naive local time that the fleet
// configures as UTC.
var rtcLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// TelemetryTime returns the device-reported epoch milliseconds for a raw
// telemetry record, or 0 when the record carries no usable time. Telemetry
// without a device clock has no recovery path and is dropped by the
// normalizer.
func TelemetryTime(rec *fastjson.Value) int64 {
	return int64(ToInt(rec.Get("ms"), 0))
}

// EventTime resolves epoch milliseconds for a raw event record. Device
// clocks, line counters and step counters fail independently, so candidates
// are tried in order of trustworthiness:
//
//  1. device-reported ms
//  2. RTC string, parsed as UTC
//  3. line_index seconds
//  4. current_step seconds
//  5. the record's sequence number, in seconds
//
// The last candidate always yields a positive value, so events are never
// dropped for lack of a timestamp. batchPos is the record's 1-based position
// in the submitted batch and seeds the sequence when line_index is unset.
func EventTime(rec *fastjson.Value, batchPos int) (timeMs int64, sequence int) {
	lineIndex := ToInt(rec.Get("line_index"), 0)
	sequence = lineIndex
	if sequence <= 0 {
		sequence = batchPos
	}

	if ms := int64(ToInt(rec.Get("ms"), 0)); ms > 0 {
		return ms, sequence
	}
	if iso := ToString(rec.Get("rtc_iso"), ""); iso != "" {
		if t, ok := parseRTC(iso); ok {
			if ms := t.UnixMilli(); ms > 0 {
				return ms, sequence
			}
		}
	}
	if lineIndex > 0 {
		return int64(lineIndex) * 1000, sequence
	}
	if step := ToInt(rec.Get("current_step"), 0); step > 0 {
		return int64(step) * 1000, sequence
	}
	return int64(sequence) * 1000, sequence
}

func parseRTC(iso string) (time.Time, bool) {
	for _, layout := range rtcLayouts {
		if t, err := time.ParseInLocation(layout, iso, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
