package workflow_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/hintstate"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/quizapi"
	"github.com/umtp/assist-gateway/internal/storage"
	"github.com/umtp/assist-gateway/internal/workflow"
)

type fakeBackend struct {
	mu         sync.Mutex
	check      quizapi.CheckResult
	checkErr   error
	hints      []string
	hintsErr   error
	checkCalls int
	hintCalls  int
	// gate, when set, blocks Hints until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (b *fakeBackend) Check(_ context.Context, _ int64, _ model.AnswerSet) (quizapi.CheckResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkCalls++
	return b.check, b.checkErr
}

func (b *fakeBackend) Hints(_ context.Context, _ int64, _ model.AnswerSet) ([]string, error) {
	b.mu.Lock()
	b.hintCalls++
	gate, entered := b.gate, b.entered
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return b.hints, b.hintsErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []eventlog.Params
}

func (s *recordingSink) Enqueue(_ context.Context, p eventlog.Params) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, p)
	return true
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventName
	}
	return out
}

func (s *recordingSink) last() eventlog.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func testQuestion() *model.Question {
	return &model.Question{
		ID:                 7,
		ProblemDescription: "図書館システムのクラス図",
		Question:           "空欄を埋めよ",
		Choices: []model.Choice{
			{ID: 1, QuestionID: 7, Label: "A", Text: "Book"},
			{ID: 2, QuestionID: 7, Label: "B", Text: "Member"},
			{ID: 3, QuestionID: 7, Label: "C", Text: "Loan"},
		},
	}
}

type fixture struct {
	wf      *workflow.Workflow
	backend *fakeBackend
	sink    *recordingSink
	kv      storage.KV
	store   *hintstate.Store
}

func newFixture(t *testing.T, backend *fakeBackend, precheck bool) *fixture {
	t.Helper()
	kv := storage.NewMemory(time.Hour)
	return newFixtureWithKV(t, backend, precheck, kv)
}

func newFixtureWithKV(t *testing.T, backend *fakeBackend, precheck bool, kv storage.KV) *fixture {
	t.Helper()
	sink := &recordingSink{}
	store := hintstate.NewStore(kv, zerolog.Nop())
	wf := workflow.New(testQuestion(), workflow.Deps{
		Backend: backend,
		Store:   store,
		Events:  sink,
		Log:     zerolog.Nop(),
	}, workflow.Options{Precheck: precheck})
	wf.Open(context.Background())
	return &fixture{wf: wf, backend: backend, sink: sink, kv: kv, store: store}
}

func TestRequestIncorrectAnswersWithholdsHints(t *testing.T) {
	backend := &fakeBackend{
		check: quizapi.CheckResult{Correct: false, Message: "b is wrong"},
		hints: []string{"h1", "h2", "h3"},
	}
	f := newFixture(t, backend, true)
	ctx := context.Background()

	if _, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "a", "A"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if _, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "b", "A"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	snap, err := f.wf.Request(ctx, workflow.Caller{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if snap.State != workflow.StateAnswerInvalid {
		t.Errorf("state = %s, want %s", snap.State, workflow.StateAnswerInvalid)
	}
	if got := snap.Texts(); !reflect.DeepEqual(got, []string{model.AnswerInvalidMessage}) {
		t.Errorf("hints = %v", got)
	}
	if backend.hintCalls != 0 {
		t.Errorf("hints endpoint called %d times, want 0", backend.hintCalls)
	}
	for _, name := range f.sink.names() {
		if name == model.EventHintRequest {
			t.Errorf("hint_request logged for an invalid answer")
		}
	}
}

func TestRequestCorrectAnswersLogsHintRequest(t *testing.T) {
	backend := &fakeBackend{
		check: quizapi.CheckResult{Correct: true},
		hints: []string{"h1", "h2", "h3"},
	}
	f := newFixture(t, backend, true)
	ctx := context.Background()

	snap, err := f.wf.Request(ctx, workflow.Caller{StudentID: "s1234567"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if snap.State != workflow.StateHintsReady {
		t.Fatalf("state = %s, want %s", snap.State, workflow.StateHintsReady)
	}
	if snap.Loading {
		t.Errorf("loading still set after completion")
	}
	if got := snap.Texts(); !reflect.DeepEqual(got, []string{"h1", "h2", "h3"}) {
		t.Errorf("hints = %v", got)
	}
	wantBadges := []string{"方向付け", "部分解答", "手順ガイド"}
	for i, h := range snap.Hints {
		if h.Badge != wantBadges[i] || h.Number != i+1 {
			t.Errorf("hint %d = %+v", i, h)
		}
	}

	if got := f.sink.names(); !reflect.DeepEqual(got, []string{model.EventHintRequest}) {
		t.Fatalf("events = %v", got)
	}
	ev := f.sink.last()
	if ev.StudentID != "s1234567" || *ev.QuestionID != 7 {
		t.Errorf("event identity = %q/%d", ev.StudentID, *ev.QuestionID)
	}
	if !reflect.DeepEqual(ev.Hints, []string{"h1", "h2", "h3"}) {
		t.Errorf("event hints = %v", ev.Hints)
	}
}

func TestRequestWithoutPrecheckSkipsCheck(t *testing.T) {
	backend := &fakeBackend{hints: []string{"only"}}
	f := newFixture(t, backend, false)

	snap, _ := f.wf.Request(context.Background(), workflow.Caller{})
	if backend.checkCalls != 0 {
		t.Errorf("check called %d times", backend.checkCalls)
	}
	if snap.State != workflow.StateHintsReady || len(snap.Hints) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRequestCheckFailureShowsPlaceholder(t *testing.T) {
	backend := &fakeBackend{checkErr: errors.New("connection refused")}
	f := newFixture(t, backend, true)

	snap, err := f.wf.Request(context.Background(), workflow.Caller{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if snap.State != workflow.StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if got := snap.Texts(); !reflect.DeepEqual(got, []string{model.HintFailureMessage}) {
		t.Errorf("hints = %v", got)
	}
	if backend.hintCalls != 0 {
		t.Errorf("hints endpoint called after failed check")
	}
	if len(f.sink.names()) != 0 {
		t.Errorf("events = %v, want none", f.sink.names())
	}
}

func TestRequestHintFailureShowsPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		check:    quizapi.CheckResult{Correct: true},
		hintsErr: &quizapi.StatusError{Method: "POST", Path: "/question/7/hints", Code: 500},
	}
	f := newFixture(t, backend, true)

	snap, _ := f.wf.Request(context.Background(), workflow.Caller{})
	if got := snap.Texts(); !reflect.DeepEqual(got, []string{model.HintFailureMessage}) {
		t.Errorf("hints = %v", got)
	}
	if snap.State != workflow.StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}

	// the failure placeholder is a displayed hint and can be toggled like one
	if _, err := f.wf.Toggle(context.Background(), workflow.Caller{}, 0); err != nil {
		t.Errorf("Toggle placeholder: %v", err)
	}
}

func TestRequestWhileCheckingIsRejected(t *testing.T) {
	backend := &fakeBackend{
		hints:   []string{"h1"},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	f := newFixture(t, backend, false)
	ctx := context.Background()

	done := make(chan workflow.Snapshot)
	go func() {
		snap, _ := f.wf.Request(ctx, workflow.Caller{})
		done <- snap
	}()
	<-backend.entered

	if snap := f.wf.Snapshot(); snap.State != workflow.StateChecking || !snap.Loading {
		t.Errorf("in-flight snapshot = %s loading=%v", snap.State, snap.Loading)
	}
	if _, err := f.wf.Request(ctx, workflow.Caller{}); !errors.Is(err, workflow.ErrRequestInFlight) {
		t.Errorf("second Request err = %v, want ErrRequestInFlight", err)
	}

	close(backend.gate)
	if snap := <-done; snap.State != workflow.StateHintsReady {
		t.Errorf("first request state = %s", snap.State)
	}
	if backend.hintCalls != 1 {
		t.Errorf("hints endpoint called %d times, want 1", backend.hintCalls)
	}
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	backend := &fakeBackend{
		hints:   []string{"late"},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	f := newFixture(t, backend, false)
	ctx := context.Background()

	done := make(chan workflow.Snapshot)
	go func() {
		snap, _ := f.wf.Request(ctx, workflow.Caller{})
		done <- snap
	}()
	<-backend.entered

	f.wf.Reset(ctx)
	close(backend.gate)
	<-done

	snap := f.wf.Snapshot()
	if len(snap.Hints) != 0 || snap.State != workflow.StateIdle {
		t.Errorf("snapshot after reset = %+v", snap)
	}
	if snap.Placeholder != model.NoHintsMessage {
		t.Errorf("placeholder = %q", snap.Placeholder)
	}
	if len(f.sink.names()) != 0 {
		t.Errorf("stale result was logged: %v", f.sink.names())
	}
}

func TestToggleTracksSeenAndOpen(t *testing.T) {
	backend := &fakeBackend{hints: []string{"h1", "h2", "h3"}}
	f := newFixture(t, backend, false)
	ctx := context.Background()
	f.wf.Request(ctx, workflow.Caller{})

	snap, err := f.wf.Toggle(ctx, workflow.Caller{}, 1)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !reflect.DeepEqual(snap.OpenLevels, []int{1}) || !reflect.DeepEqual(snap.SeenLevels, []int{1}) {
		t.Errorf("after open: open=%v seen=%v", snap.OpenLevels, snap.SeenLevels)
	}
	ev := f.sink.last()
	if ev.EventName != "open_hint_level_2" {
		t.Errorf("event = %s", ev.EventName)
	}
	if !reflect.DeepEqual([]int(ev.SeenHints), []int{1}) || !reflect.DeepEqual([]int(ev.OpenHints), []int{1}) {
		t.Errorf("event sets: seen=%v open=%v", ev.SeenHints, ev.OpenHints)
	}

	snap, _ = f.wf.Toggle(ctx, workflow.Caller{}, 1)
	if len(snap.OpenLevels) != 0 || !reflect.DeepEqual(snap.SeenLevels, []int{1}) {
		t.Errorf("after close: open=%v seen=%v", snap.OpenLevels, snap.SeenLevels)
	}
	if !snap.Hints[1].Seen || snap.Hints[1].Open {
		t.Errorf("hint view = %+v", snap.Hints[1])
	}

	// closing logs the same event name with the emptied open set
	var toggles []string
	for _, name := range f.sink.names() {
		if name == "open_hint_level_2" {
			toggles = append(toggles, name)
		}
	}
	if len(toggles) != 2 {
		t.Errorf("open_hint_level_2 events = %d, want 2 (%v)", len(toggles), f.sink.names())
	}
	ev = f.sink.last()
	if ev.EventName != "open_hint_level_2" {
		t.Errorf("close event = %s", ev.EventName)
	}
	if len(ev.OpenHints) != 0 || !reflect.DeepEqual([]int(ev.SeenHints), []int{1}) {
		t.Errorf("close event sets: seen=%v open=%v", ev.SeenHints, ev.OpenHints)
	}

	raw, err := f.kv.Get(ctx, config.StorageKey.SeenHints(7))
	if err != nil || raw != "[1]" {
		t.Errorf("persisted = %q, %v", raw, err)
	}
}

func TestToggleOutOfRange(t *testing.T) {
	f := newFixture(t, &fakeBackend{hints: []string{"h1"}}, false)
	ctx := context.Background()

	if _, err := f.wf.Toggle(ctx, workflow.Caller{}, 0); !errors.Is(err, workflow.ErrInvalidLevel) {
		t.Errorf("toggle with no hints err = %v", err)
	}
	f.wf.Request(ctx, workflow.Caller{})
	for _, level := range []int{-1, 1} {
		if _, err := f.wf.Toggle(ctx, workflow.Caller{}, level); !errors.Is(err, workflow.ErrInvalidLevel) {
			t.Errorf("toggle %d err = %v", level, err)
		}
	}
}

func TestReopenRestoresSeenButNotOpen(t *testing.T) {
	kv := storage.NewMemory(time.Hour)
	ctx := context.Background()

	first := newFixtureWithKV(t, &fakeBackend{hints: []string{"h1", "h2", "h3"}}, false, kv)
	first.wf.Request(ctx, workflow.Caller{})
	first.wf.Toggle(ctx, workflow.Caller{}, 0)
	first.wf.Toggle(ctx, workflow.Caller{}, 2)
	first.wf.Release()

	second := newFixtureWithKV(t, &fakeBackend{}, false, kv)
	snap := second.wf.Snapshot()
	if !reflect.DeepEqual(snap.SeenLevels, []int{0, 2}) {
		t.Errorf("seen after reopen = %v", snap.SeenLevels)
	}
	if len(snap.OpenLevels) != 0 {
		t.Errorf("open after reopen = %v", snap.OpenLevels)
	}
}

func TestSubmitLogsThenClears(t *testing.T) {
	f := newFixture(t, &fakeBackend{hints: []string{"h1", "h2"}}, false)
	ctx := context.Background()
	f.wf.SetAnswer(ctx, workflow.Caller{}, "a", "b")
	f.wf.Request(ctx, workflow.Caller{})
	f.wf.Toggle(ctx, workflow.Caller{}, 0)

	snap, err := f.wf.Submit(ctx, workflow.Caller{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ev := f.sink.last()
	if ev.EventName != model.EventSubmitAnswer {
		t.Fatalf("event = %s", ev.EventName)
	}
	if len(ev.Hints) != 2 || !reflect.DeepEqual([]int(ev.SeenHints), []int{0}) {
		t.Errorf("submit event carries hints=%v seen=%v", ev.Hints, ev.SeenHints)
	}
	if ev.Answers["a"] != "B" {
		t.Errorf("submitted answers = %v", ev.Answers)
	}

	if len(snap.Hints) != 0 || len(snap.SeenLevels) != 0 {
		t.Errorf("snapshot after submit = %+v", snap)
	}
	if snap.Answers["a"] != "B" {
		t.Errorf("answers cleared by submit: %v", snap.Answers)
	}
	if _, err := f.kv.Get(ctx, config.StorageKey.SeenHints(7)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("seen hints still persisted: %v", err)
	}
}

func TestSetAnswerValidation(t *testing.T) {
	f := newFixture(t, &fakeBackend{}, false)
	ctx := context.Background()

	if _, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "z", "A"); !errors.Is(err, model.ErrUnknownBlank) {
		t.Errorf("unknown blank err = %v", err)
	}
	if _, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "a", "Q"); !errors.Is(err, model.ErrUnknownChoice) {
		t.Errorf("unknown choice err = %v", err)
	}

	snap, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "c", "c")
	if err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if snap.Answers["c"] != "C" {
		t.Errorf("answer = %q, want canonical C", snap.Answers["c"])
	}
	if _, err := f.wf.SetAnswer(ctx, workflow.Caller{}, "c", ""); err != nil {
		t.Errorf("clearing a blank: %v", err)
	}
	if got := f.sink.names(); !reflect.DeepEqual(got, []string{model.EventAnswerChange, model.EventAnswerChange}) {
		t.Errorf("events = %v", got)
	}
}

func TestRateHint(t *testing.T) {
	f := newFixture(t, &fakeBackend{hints: []string{"h1", "h2"}}, false)
	ctx := context.Background()
	f.wf.Request(ctx, workflow.Caller{})

	if _, err := f.wf.Rate(ctx, workflow.Caller{}, 1, 6, ""); !errors.Is(err, workflow.ErrInvalidRating) {
		t.Errorf("rating 6 err = %v", err)
	}
	if _, err := f.wf.Rate(ctx, workflow.Caller{}, 1, 4, "分かりやすい"); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	ev := f.sink.last()
	if ev.EventName != "rate_hint_level_2" || ev.Rating == nil || *ev.Rating != 4 || ev.Comment != "分かりやすい" {
		t.Errorf("rate event = %+v", ev)
	}
}
