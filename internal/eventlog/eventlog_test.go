package eventlog_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/model"
)

type fixedIdentity string

func (f fixedIdentity) AnonID(context.Context) (string, bool) { return string(f), f != "" }

type captured struct {
	path    string
	headers http.Header
	body    map[string]interface{}
}

type logServer struct {
	mu     sync.Mutex
	status int
	reqs   []captured
}

func (s *logServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("log body is not JSON: %v", err)
		}
		s.mu.Lock()
		s.reqs = append(s.reqs, captured{path: r.URL.Path, headers: r.Header.Clone(), body: body})
		status := s.status
		s.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (s *logServer) requests() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]captured(nil), s.reqs...)
}

func newLogger(t *testing.T, status int) (*eventlog.Logger, *logServer) {
	t.Helper()
	ls := &logServer{status: status}
	srv := httptest.NewServer(ls.handler(t))
	t.Cleanup(srv.Close)
	return eventlog.NewLogger(srv.URL, srv.Client(), time.Second, zerolog.Nop()), ls
}

func questionID(id int64) *int64 { return &id }

func TestSendPostsEvent(t *testing.T) {
	logger, ls := newLogger(t, http.StatusOK)

	logger.Send(context.Background(), eventlog.Params{
		QuestionID: questionID(7),
		StudentID:  "s1234567",
		EventName:  eventlog.OpenHintEvent(1),
		Answers:    model.AnswerSet{"a": "A", "b": ""},
		SeenHints:  []int{0, 1},
		OpenHints:  []int{1},
		Hints:      []string{"h1", "h2"},
		Identity:   fixedIdentity("anon-1"),
		Token:      eventlog.StaticToken("tok"),
	})

	reqs := ls.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	req := reqs[0]

	if req.path != "/api/log" {
		t.Errorf("path: got %s", req.path)
	}
	if got := req.headers.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization: got %q", got)
	}
	if got := req.headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type: got %q", got)
	}
	if _, err := uuid.Parse(req.headers.Get("Idempotency-Key")); err != nil {
		t.Errorf("Idempotency-Key is not a UUID: %v", err)
	}

	body := req.body
	if body["event_name"] != "open_hint_level_2" {
		t.Errorf("event_name: got %v", body["event_name"])
	}
	if body["question_id"] != float64(7) {
		t.Errorf("question_id: got %v", body["question_id"])
	}
	if body["student_id"] != "s1234567" {
		t.Errorf("student_id: got %v", body["student_id"])
	}
	if body["anon_id"] != "anon-1" {
		t.Errorf("anon_id: got %v", body["anon_id"])
	}
	wantStatus := map[string]interface{}{"1": false, "2": true}
	if !reflect.DeepEqual(body["hint_open_status"], wantStatus) {
		t.Errorf("hint_open_status: got %v, want %v", body["hint_open_status"], wantStatus)
	}
	wantHints := map[string]interface{}{"1": "h1", "2": "h2"}
	if !reflect.DeepEqual(body["hints"], wantHints) {
		t.Errorf("hints: got %v", body["hints"])
	}
	if _, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string)); err != nil {
		t.Errorf("timestamp: %v", err)
	}
}

func TestSendUsesFreshIdempotencyKeys(t *testing.T) {
	logger, ls := newLogger(t, http.StatusOK)
	for i := 0; i < 2; i++ {
		logger.Send(context.Background(), eventlog.Params{EventName: model.EventAnswerChange})
	}

	reqs := ls.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].headers.Get("Idempotency-Key") == reqs[1].headers.Get("Idempotency-Key") {
		t.Error("two events share an idempotency key")
	}
}

func TestSendAnonymousOmitsOptionalFields(t *testing.T) {
	logger, ls := newLogger(t, http.StatusOK)
	logger.Send(context.Background(), eventlog.Params{EventName: model.EventHintRequest})

	req := ls.requests()[0]
	if req.headers.Get("Authorization") != "" {
		t.Error("Authorization set without a token")
	}
	if _, ok := req.body["student_id"]; ok {
		t.Error("student_id present for an anonymous caller")
	}
	if v, ok := req.body["anon_id"]; !ok || v != nil {
		t.Errorf("anon_id: got %v (present=%v), want null", v, ok)
	}
	if v, ok := req.body["question_id"]; !ok || v != nil {
		t.Errorf("question_id: got %v (present=%v), want null", v, ok)
	}
}

func TestSendSwallowsFailures(t *testing.T) {
	logger, ls := newLogger(t, http.StatusInternalServerError)
	failingToken := func(context.Context) (string, error) { return "", errors.New("signed out") }

	logger.Send(context.Background(), eventlog.Params{EventName: model.EventSubmitAnswer, Token: failingToken})

	reqs := ls.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].headers.Get("Authorization") != "" {
		t.Error("Authorization set although the token was unavailable")
	}

	// Unreachable endpoint: still no panic and no error surface.
	dead := eventlog.NewLogger("http://127.0.0.1:1", nil, 100*time.Millisecond, zerolog.Nop())
	dead.Send(context.Background(), eventlog.Params{EventName: model.EventSubmitAnswer})
}

func TestBuildEventRatingAndComment(t *testing.T) {
	score := 4
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("JST", 9*3600))
	ev := eventlog.BuildEvent(eventlog.Params{
		EventName: eventlog.RateHintEvent(0),
		Rating:    &score,
		Comment:   "わかりやすい",
		Answers:   model.AnswerSet{"a": "B"},
	}, "", false, now)

	if ev.EventName != "rate_hint_level_1" {
		t.Errorf("EventName: got %s", ev.EventName)
	}
	if ev.Rating == nil || *ev.Rating != 4 || ev.Comment != "わかりやすい" {
		t.Errorf("rating/comment: got %v %q", ev.Rating, ev.Comment)
	}
	if ev.AnonID != nil {
		t.Error("AnonID set although none is available")
	}
	if ev.Timestamp != "2026-01-01T18:04:05Z" {
		t.Errorf("Timestamp: got %s", ev.Timestamp)
	}
	if len(ev.HintOpenStatus) != 0 || len(ev.Hints) != 0 {
		t.Errorf("empty maps expected: %v %v", ev.HintOpenStatus, ev.Hints)
	}
}

func token(t *testing.T, claims string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(claims)) + "." +
		enc.EncodeToString([]byte("unchecked"))
}

func TestStudentIDFromToken(t *testing.T) {
	id, err := eventlog.StudentIDFromToken(token(t, `{"email":"s2412345xyz@example.ac.jp"}`))
	if err != nil {
		t.Fatalf("StudentIDFromToken: %v", err)
	}
	if id != "s2412345" {
		t.Errorf("got %q, want s2412345", id)
	}

	if _, err := eventlog.StudentIDFromToken(token(t, `{"sub":"x"}`)); !errors.Is(err, eventlog.ErrNoEmailClaim) {
		t.Errorf("no email: got %v, want ErrNoEmailClaim", err)
	}
	if _, err := eventlog.StudentIDFromToken("garbage"); err == nil {
		t.Error("malformed token accepted")
	}
}

func TestStudentIDFromEmail(t *testing.T) {
	cases := map[string]string{
		"abc@x.jp":          "abc",
		" 12345678@x.jp ":   "12345678",
		"123456789@x.jp":    "12345678",
		"no-at-sign-at-all": "no-at-si",
	}
	for in, want := range cases {
		if got := eventlog.StudentIDFromEmail(in); got != want {
			t.Errorf("StudentIDFromEmail(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(eventlog.StudentIDFromEmail("ab@cd"), "@") {
		t.Error("domain leaked into student id")
	}
}

func TestStaticToken(t *testing.T) {
	if eventlog.StaticToken("") != nil {
		t.Error("empty token should yield nil TokenFunc")
	}
	got, err := eventlog.StaticToken("t")(context.Background())
	if err != nil || got != "t" {
		t.Errorf("got %q, %v", got, err)
	}
}
