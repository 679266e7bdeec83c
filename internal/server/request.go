package server

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Request is the transport-agnostic view of one ingest call. The HTTP daemon
// and the Lambda entrypoint both reduce their native request shapes to this.
type Request struct {
	// Path is the raw request path; routing matches on its suffix.
	Path string

	// Headers holds single-valued request headers. Lookup is
	// case-insensitive.
	Headers map[string]string

	// Body is the request payload, base64-encoded when IsBase64Encoded is
	// set (the Lambda transport flag).
	Body            string
	IsBase64Encoded bool
}

// Response is the terminal result of one ingest call.
type Response struct {
	StatusCode int
	Body       string
}

// header returns the named header, matching case-insensitively.
func (r Request) header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// payload returns the decoded request body.
func (r Request) payload() ([]byte, error) {
	if !r.IsBase64Encoded {
		return []byte(r.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64 body")
	}
	return b, nil
}

func jsonResponse(status int, payload any) Response {
	b, err := json.Marshal(payload)
	if err != nil {
		// payloads are fixed shapes; marshalling cannot fail in practice
		return Response{StatusCode: 500, Body: `{"error":"encode response"}`}
	}
	return Response{StatusCode: status, Body: string(b)}
}

func errorResponse(status int, msg string) Response {
	return jsonResponse(status, map[string]string{"error": msg})
}
