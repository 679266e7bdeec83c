package storage

import (
	"context"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/chamberlog/chamberlog/internal/ingest"
	"github.com/chamberlog/chamberlog/internal/model"
)

// timestreamMaxBatch is the WriteRecords per-call record limit.
const timestreamMaxBatch = 100

// TimestreamAPI is the slice of the Timestream Write client the writer needs.
type TimestreamAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

// TimestreamWriter persists records as multi-measure Timestream rows.
// Categorical fields become dimensions, typed readings become measure
// values, and the record's line/sequence counter becomes the version used by
// Timestream for conflict resolution on resubmitted batches.
type TimestreamWriter struct {
	client         TimestreamAPI
	database       string
	telemetryTable string
	eventTable     string
}

func NewTimestreamWriter(client TimestreamAPI, database, telemetryTable, eventTable string) *TimestreamWriter {
	return &TimestreamWriter{
		client:         client,
		database:       database,
		telemetryTable: telemetryTable,
		eventTable:     eventTable,
	}
}

func (w *TimestreamWriter) WriteTelemetry(ctx context.Context, records []model.TelemetryRecord) (int, error) {
	rows := make([]types.Record, len(records))
	for i, r := range records {
		rows[i] = telemetryRow(r)
	}
	return w.writeChunks(ctx, w.telemetryTable, rows)
}

func (w *TimestreamWriter) WriteEvents(ctx context.Context, records []model.EventRecord) (int, error) {
	rows := make([]types.Record, len(records))
	for i, r := range records {
		rows[i] = eventRow(r)
	}
	return w.writeChunks(ctx, w.eventTable, rows)
}

// writeChunks issues one WriteRecords call per chunk and accumulates the
// accepted count. The first failing chunk aborts the batch; prior chunks are
// already durable.
func (w *TimestreamWriter) writeChunks(ctx context.Context, table string, rows []types.Record) (int, error) {
	accepted := 0
	for chunk := range slices.Chunk(rows, timestreamMaxBatch) {
		_, err := w.client.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
			DatabaseName: aws.String(w.database),
			TableName:    aws.String(table),
			Records:      chunk,
		})
		if err != nil {
			log.WithError(err).Errorf("timestream write to %s.%s failed, %d records already committed", w.database, table, accepted)
			return accepted, errors.Wrapf(err, "timestream write to %s.%s", w.database, table)
		}
		accepted += len(chunk)
	}
	return accepted, nil
}

func telemetryRow(r model.TelemetryRecord) types.Record {
	dims := []types.Dimension{
		{Name: aws.String("device_id"), Value: aws.String(r.DeviceID)},
		{Name: aws.String("run_file"), Value: aws.String(r.RunFile)},
		{Name: aws.String("step"), Value: aws.String(r.Step)},
		{Name: aws.String("sd_state"), Value: aws.String(r.SdState)},
		{Name: aws.String("rtc_state"), Value: aws.String(r.RtcState)},
		{Name: aws.String("run_state"), Value: aws.String(r.RunState)},
	}
	measures := []types.MeasureValue{
		bigintMeasure("line_index", r.LineIndex),
		bigintMeasure("mask", r.Mask),
		doubleMeasure("t1", r.T1),
		doubleMeasure("u1", r.U1),
		doubleMeasure("t2", r.T2),
		doubleMeasure("u2", r.U2),
		doubleMeasure("tavg", r.TAvg),
		doubleMeasure("uavg", r.UAvg),
		varcharMeasure("rtc_iso", r.RtcISO),
	}
	return types.Record{
		Dimensions:       dims,
		MeasureName:      aws.String("telemetry"),
		MeasureValueType: types.MeasureValueTypeMulti,
		MeasureValues:    measures,
		Time:             aws.String(strconv.FormatInt(r.TimeMs, 10)),
		TimeUnit:         types.TimeUnitMilliseconds,
		Version:          aws.Int64(r.Version()),
	}
}

func eventRow(r model.EventRecord) types.Record {
	dims := []types.Dimension{
		{Name: aws.String("device_id"), Value: aws.String(r.DeviceID)},
		{Name: aws.String("run_file"), Value: aws.String(r.RunFile)},
		{Name: aws.String("event_type"), Value: aws.String(r.EventType)},
		{Name: aws.String("screen"), Value: aws.String(r.Screen)},
	}
	measures := []types.MeasureValue{
		bigintMeasure("arg0", r.Arg0),
		bigintMeasure("arg1", r.Arg1),
		bigintMeasure("current_step", r.CurrentStep),
		varcharMeasure("rtc_iso", r.RtcISO),
	}
	return types.Record{
		Dimensions:       dims,
		MeasureName:      aws.String("event"),
		MeasureValueType: types.MeasureValueTypeMulti,
		MeasureValues:    measures,
		Time:             aws.String(strconv.FormatInt(r.TimeMs, 10)),
		TimeUnit:         types.TimeUnitMilliseconds,
		Version:          aws.Int64(r.Version()),
	}
}

func bigintMeasure(name string, v int) types.MeasureValue {
	return types.MeasureValue{
		Name:  aws.String(name),
		Value: aws.String(strconv.Itoa(v)),
		Type:  types.MeasureValueTypeBigint,
	}
}

func doubleMeasure(name string, v float64) types.MeasureValue {
	return types.MeasureValue{
		Name:  aws.String(name),
		Value: aws.String(ingest.FormatDecimal(v)),
		Type:  types.MeasureValueTypeDouble,
	}
}

func varcharMeasure(name, v string) types.MeasureValue {
	// Timestream rejects empty varchar measure values
	if v == "" {
		v = "-"
	}
	return types.MeasureValue{
		Name:  aws.String(name),
		Value: aws.String(v),
		Type:  types.MeasureValueTypeVarchar,
	}
}
