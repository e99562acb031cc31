// Package eventlog journals student interactions to the backend log endpoint.
// Delivery is best-effort telemetry: nothing here returns an error to the caller.
package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/metrics"
)

// Logger posts LogEvents to {baseURL}/api/log.
type Logger struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	log      zerolog.Logger

	newKey func() string
	now    func() time.Time
}

// NewLogger creates a Logger. A zero timeout selects DefaultTimeout.
func NewLogger(baseURL string, client *http.Client, timeout time.Duration, log zerolog.Logger) *Logger {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Logger{
		endpoint: baseURL + "/api/log",
		client:   client,
		timeout:  timeout,
		log:      log.With().Str("component", "event_logger").Logger(),
		newKey:   func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// Send delivers one event and waits for the outcome. Failures (token, network,
// timeout, non-2xx) are logged and counted, never returned. ctx is the
// cancellation signal.
func (l *Logger) Send(ctx context.Context, p Params) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Str("event", p.EventName).Msg("Event log panicked")
			metrics.LogDeliveries.WithLabelValues("failed").Inc()
		}
	}()

	timeout := l.timeout
	if p.Timeout > 0 {
		timeout = p.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var anonID string
	var hasAnonID bool
	if p.Identity != nil {
		anonID, hasAnonID = p.Identity.AnonID(ctx)
	}

	ev := BuildEvent(p, anonID, hasAnonID, l.now())
	body, err := json.Marshal(ev)
	if err != nil {
		l.fail(p, err, "Encode event failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		l.fail(p, err, "Build log request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", l.newKey())

	if p.Token != nil {
		token, err := p.Token(ctx)
		switch {
		case err != nil:
			l.log.Warn().Err(err).Str("event", p.EventName).Msg("Token unavailable, sending unauthenticated")
		case token != "":
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.fail(p, err, "Event log delivery failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.fail(p, fmt.Errorf("unexpected status %d", resp.StatusCode), "Event log rejected")
		return
	}

	metrics.LogDeliveries.WithLabelValues("ok").Inc()
	l.log.Debug().Str("event", p.EventName).Msg("Event logged")
}

func (l *Logger) fail(p Params, err error, msg string) {
	metrics.LogDeliveries.WithLabelValues("failed").Inc()
	evt := l.log.Error().Err(err).Str("event", p.EventName)
	if p.QuestionID != nil {
		evt = evt.Int64("question_id", *p.QuestionID)
	}
	evt.Msg(msg)
}
