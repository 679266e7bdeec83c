package model

// TelemetryRecord is the backend-agnostic view of one normalized telemetry
// sample. It is built once per raw record during ingest and never mutated
// afterwards.
type TelemetryRecord struct {
	DeviceID  string
	RunFile   string
	LineIndex int
	Step      string
	Mask      int
	T1        float64
	U1        float64
	T2        float64
	U2        float64
	TAvg      float64
	UAvg      float64
	RtcISO    string
	SdState   string
	RtcState  string
	RunState  string
	TimeMs    int64
}

// EventRecord is the backend-agnostic view of one normalized device event.
type EventRecord struct {
	DeviceID    string
	RunFile     string
	EventType   string
	Screen      string
	Arg0        int
	Arg1        int
	CurrentStep int
	RtcISO      string
	TimeMs      int64
	Sequence    int // version tag; >= 1
}

// Version is the conflict-resolution version reported to the backend.
func (r TelemetryRecord) Version() int64 {
	if r.LineIndex > 0 {
		return int64(r.LineIndex)
	}
	return 1
}

// Version is the conflict-resolution version reported to the backend.
func (r EventRecord) Version() int64 {
	if r.Sequence > 0 {
		return int64(r.Sequence)
	}
	return 1
}

// LastKey identifies the final record persisted by an ingest call. Clients
// compare it against their send buffer to decide where to resume.
type LastKey struct {
	DeviceID  string `json:"device_id"`
	RunFile   string `json:"run_file"`
	Step      string `json:"step,omitempty"`
	EventType string `json:"event_type,omitempty"`
	TimeMs    int64  `json:"time"`
}
