package log

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RoundTripper logs outbound requests and propagates a request ID so client
// and devbackend log lines can be joined.
type RoundTripper struct {
	Next   http.RoundTripper
	Logger zerolog.Logger
}

// NewRoundTripper wraps next (http.DefaultTransport when nil).
func NewRoundTripper(next http.RoundTripper, logger zerolog.Logger) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{Next: next, Logger: logger}
}

func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(headerRequestID, reqID)
	}

	resp, err := t.Next.RoundTrip(req)

	evt := t.Logger.Debug().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, req.Method).
		Str(FieldURL, req.URL.String()).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
	if err != nil {
		evt.Err(err).Msg("request failed")
		return nil, err
	}
	evt.Int(FieldStatus, resp.StatusCode).Msg("request completed")
	return resp, nil
}
