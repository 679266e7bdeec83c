// Package server routes batch-ingest requests to the normalization pipeline
// and assembles the response envelope. One request runs to completion on one
// goroutine; the only blocking point is the backend write.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/chamberlog/chamberlog/internal/config"
	"github.com/chamberlog/chamberlog/internal/ingest"
	"github.com/chamberlog/chamberlog/internal/model"
	"github.com/chamberlog/chamberlog/internal/storage"
)

// Route suffixes. Anything else is not found.
const (
	telemetrySuffix = "/telemetry/batch"
	eventSuffix     = "/events/batch"
)

// ingestResponse is the success envelope. LastKey identifies the final
// persisted record so clients can acknowledge and resume; it is absent for
// an empty batch.
type ingestResponse struct {
	Accepted int            `json:"accepted"`
	LastKey  *model.LastKey `json:"last_key,omitempty"`
}

// Router dispatches one ingest request: authenticate, parse, normalize,
// persist, respond. It is safe for concurrent use; per-request state lives on
// the stack and parsers come from a pool.
type Router struct {
	cfg     config.Config
	writer  storage.Writer
	parsers fastjson.ParserPool
}

func NewRouter(cfg config.Config, writer storage.Writer) *Router {
	return &Router{cfg: cfg, writer: writer}
}

// Handle processes one ingest call and returns the terminal response.
func (rt *Router) Handle(ctx context.Context, req Request) Response {
	route := routeName(req.Path)

	resp := rt.handle(ctx, req, route)
	observeRequest(route, resp.StatusCode)
	return resp
}

func (rt *Router) handle(ctx context.Context, req Request, route string) Response {
	raw, err := req.payload()
	if err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
	}

	p := rt.parsers.Get()
	defer rt.parsers.Put(p)

	body, err := p.ParseBytes(raw)
	if err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
	}

	deviceID, authErr := rt.authenticate(req, body)
	if authErr != "" {
		log.WithField("reason", authErr).Warn("ingest request rejected")
		return errorResponse(http.StatusUnauthorized, authErr)
	}

	records, ok := recordsArray(body)
	if !ok {
		return errorResponse(http.StatusBadRequest, "records must be list")
	}

	switch route {
	case "telemetry":
		return rt.ingestTelemetry(ctx, deviceID, records)
	case "events":
		return rt.ingestEvents(ctx, deviceID, records)
	default:
		return errorResponse(http.StatusNotFound, "unknown route")
	}
}

// authenticate checks the shared secret and resolves the device identity.
// It returns the device id, or a reason string on failure. A server with no
// configured secret rejects everything.
func (rt *Router) authenticate(req Request, body *fastjson.Value) (string, string) {
	token := req.header("x-api-token")
	switch {
	case rt.cfg.APITokenHash != "":
		if token == "" || bcrypt.CompareHashAndPassword([]byte(rt.cfg.APITokenHash), []byte(token)) != nil {
			return "", "invalid token"
		}
	case rt.cfg.APIToken != "":
		if token != rt.cfg.APIToken {
			return "", "invalid token"
		}
	default:
		return "", "server token not configured"
	}

	deviceID := req.header("x-device-id")
	if deviceID == "" {
		deviceID = ingest.ToString(body.Get("device_id"), "")
	}
	if deviceID == "" {
		return "", "missing device id"
	}
	return deviceID, ""
}

func (rt *Router) ingestTelemetry(ctx context.Context, deviceID string, records []*fastjson.Value) Response {
	normalized := ingest.NormalizeTelemetry(deviceID, records)
	dropped := len(records) - len(normalized)
	observeDropped(dropped)

	accepted, err := rt.writer.WriteTelemetry(ctx, normalized)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device_id": deviceID,
			"accepted":  accepted,
		}).Error("telemetry write failed")
		return errorResponse(http.StatusInternalServerError, err.Error())
	}
	observeAccepted("telemetry", accepted)

	log.WithFields(log.Fields{
		"device_id": deviceID,
		"accepted":  accepted,
		"dropped":   dropped,
	}).Info("telemetry batch ingested")

	resp := ingestResponse{Accepted: accepted}
	if n := len(normalized); n > 0 {
		last := normalized[n-1]
		resp.LastKey = &model.LastKey{
			DeviceID: last.DeviceID,
			RunFile:  last.RunFile,
			Step:     last.Step,
			TimeMs:   last.TimeMs,
		}
	}
	return jsonResponse(http.StatusOK, resp)
}

func (rt *Router) ingestEvents(ctx context.Context, deviceID string, records []*fastjson.Value) Response {
	normalized := ingest.NormalizeEvents(deviceID, records)

	accepted, err := rt.writer.WriteEvents(ctx, normalized)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device_id": deviceID,
			"accepted":  accepted,
		}).Error("event write failed")
		return errorResponse(http.StatusInternalServerError, err.Error())
	}
	observeAccepted("events", accepted)

	log.WithFields(log.Fields{
		"device_id": deviceID,
		"accepted":  accepted,
	}).Info("event batch ingested")

	resp := ingestResponse{Accepted: accepted}
	if n := len(normalized); n > 0 {
		last := normalized[n-1]
		resp.LastKey = &model.LastKey{
			DeviceID:  last.DeviceID,
			RunFile:   last.RunFile,
			EventType: last.EventType,
			TimeMs:    last.TimeMs,
		}
	}
	return jsonResponse(http.StatusOK, resp)
}

// recordsArray extracts the records field. A missing field is an empty
// batch; a present non-array value is a client error.
func recordsArray(body *fastjson.Value) ([]*fastjson.Value, bool) {
	v := body.Get("records")
	if v == nil {
		return nil, true
	}
	arr, err := v.Array()
	if err != nil {
		return nil, false
	}
	return arr, true
}

func routeName(path string) string {
	path = strings.TrimRight(path, "/")
	switch {
	case strings.HasSuffix(path, telemetrySuffix):
		return "telemetry"
	case strings.HasSuffix(path, eventSuffix):
		return "events"
	default:
		return "unknown"
	}
}
