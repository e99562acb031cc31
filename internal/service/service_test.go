package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/quizapi"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/storage"
	"github.com/umtp/assist-gateway/internal/workflow"
)

// fakeSource serves questions 1..3 in order.
type fakeSource struct {
	gets    atomic.Int32
	delay   time.Duration
	nextErr error

	// gate, when set, holds GetQuestion until closed or until its ctx ends.
	gate    chan struct{}
	entered chan struct{}
}

func question(id int64) *model.Question {
	return &model.Question{
		ID:                 id,
		ProblemDescription: "オンライン書店のクラス図",
		Answer:             "A,B",
		Choices: []model.Choice{
			{ID: 1, QuestionID: id, Label: "A", Text: "Order"},
			{ID: 2, QuestionID: id, Label: "B", Text: "Customer"},
		},
	}
}

func (s *fakeSource) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	s.gets.Add(1)
	time.Sleep(s.delay)
	if s.gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.gate:
		}
	}
	if id < 1 || id > 3 {
		return nil, quizapi.ErrNotFound
	}
	return question(id), nil
}

func (s *fakeSource) ListQuestions(context.Context) ([]model.Question, error) {
	return []model.Question{*question(1), *question(2), *question(3)}, nil
}

func (s *fakeSource) NextID(_ context.Context, id int64) (*int64, error) {
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if id >= 3 {
		return nil, nil
	}
	next := id + 1
	return &next, nil
}

func (s *fakeSource) PrevID(_ context.Context, id int64) (*int64, error) {
	if id <= 1 {
		return nil, nil
	}
	prev := id - 1
	return &prev, nil
}

type fakeBackend struct{}

func (fakeBackend) Check(context.Context, int64, model.AnswerSet) (quizapi.CheckResult, error) {
	return quizapi.CheckResult{Correct: true}, nil
}

func (fakeBackend) Hints(context.Context, int64, model.AnswerSet) ([]string, error) {
	return []string{"h1", "h2", "h3"}, nil
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

func TestQuestionServiceCachesQuestions(t *testing.T) {
	src := &fakeSource{}
	cache := storage.NewMemory(time.Minute)
	svc := service.NewQuestionService(src, cache, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := svc.Get(ctx, 2)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if q.ID != 2 || len(q.Choices) != 2 {
			t.Fatalf("unexpected question %+v", q)
		}
	}
	if got := src.gets.Load(); got != 1 {
		t.Errorf("backend calls: got %d, want 1", got)
	}
	if _, err := cache.Get(ctx, "question:2:payload"); err != nil {
		t.Errorf("payload not cached: %v", err)
	}
}

func TestQuestionServiceSharesConcurrentMisses(t *testing.T) {
	src := &fakeSource{delay: 50 * time.Millisecond}
	svc := service.NewQuestionService(src, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Get(context.Background(), 1); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := src.gets.Load(); got >= 8 {
		t.Errorf("backend calls: got %d, want concurrent misses to share calls", got)
	}
}

func TestQuestionServiceSharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc := service.NewQuestionService(src, nil, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Get(firstCtx, 1)
		firstErr <- err
	}()
	<-src.entered

	type result struct {
		q   *model.Question
		err error
	}
	second := make(chan result, 1)
	go func() {
		q, err := svc.Get(context.Background(), 1)
		second <- result{q, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller: got %v, want context.Canceled", err)
	}
	close(src.gate)

	res := <-second
	if res.err != nil {
		t.Fatalf("second caller failed with the first caller's cancellation: %v", res.err)
	}
	if res.q.ID != 1 {
		t.Errorf("question: got %d, want 1", res.q.ID)
	}
}

func TestQuestionServiceNotFound(t *testing.T) {
	svc := service.NewQuestionService(&fakeSource{}, nil, zerolog.Nop())
	if _, err := svc.Get(context.Background(), 42); !errors.Is(err, service.ErrQuestionNotFound) {
		t.Errorf("got %v, want ErrQuestionNotFound", err)
	}
	if _, err := svc.Page(context.Background(), 42); !errors.Is(err, service.ErrQuestionNotFound) {
		t.Errorf("Page: got %v, want ErrQuestionNotFound", err)
	}
}

func TestQuestionServicePage(t *testing.T) {
	svc := service.NewQuestionService(&fakeSource{}, nil, zerolog.Nop())

	page, err := svc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Question.ID != 1 {
		t.Errorf("question: got %d", page.Question.ID)
	}
	if page.Neighbors.PrevID != nil {
		t.Errorf("first question has prev %d", *page.Neighbors.PrevID)
	}
	if page.Neighbors.NextID == nil || *page.Neighbors.NextID != 2 {
		t.Errorf("next: got %v, want 2", page.Neighbors.NextID)
	}
}

func TestQuestionServicePageToleratesNeighborFailure(t *testing.T) {
	svc := service.NewQuestionService(&fakeSource{nextErr: errors.New("timeout")}, nil, zerolog.Nop())

	page, err := svc.Page(context.Background(), 2)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Neighbors.NextID != nil {
		t.Error("failed lookup should leave NextID empty")
	}
	if page.Neighbors.PrevID == nil || *page.Neighbors.PrevID != 1 {
		t.Errorf("prev: got %v, want 1", page.Neighbors.PrevID)
	}
}

type hintFixture struct {
	svc     *service.HintService
	session *storage.Memory
	durable *storage.Memory
	sink    *recordingSink
}

func newHintService(idle time.Duration) *hintFixture {
	f := &hintFixture{
		session: storage.NewMemory(0),
		durable: storage.NewMemory(0),
		sink:    &recordingSink{},
	}
	questions := service.NewQuestionService(&fakeSource{}, nil, zerolog.Nop())
	f.svc = service.NewHintService(questions, fakeBackend{}, f.sink,
		service.Stores{Durable: f.durable, Session: f.session},
		service.HintOptions{Precheck: true, IdleTTL: idle},
		zerolog.Nop(),
	)
	return f
}

var alice = service.Client{DeviceID: "dev-a", SessionID: "sess-a"}

func TestHintServiceRequiresSession(t *testing.T) {
	f := newHintService(0)
	if _, err := f.svc.Open(context.Background(), service.Client{}, 1); !errors.Is(err, service.ErrMissingSession) {
		t.Errorf("Open: got %v", err)
	}
	if _, err := f.svc.Workflow(context.Background(), service.Client{}, 1); !errors.Is(err, service.ErrMissingSession) {
		t.Errorf("Workflow: got %v", err)
	}
}

func TestHintServiceOpenStartsFreshPanel(t *testing.T) {
	f := newHintService(0)
	ctx := context.Background()

	opened, err := f.svc.Open(ctx, alice, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.Page.Neighbors.NextID == nil || *opened.Page.Neighbors.NextID != 2 {
		t.Errorf("neighbours not loaded: %+v", opened.Page.Neighbors)
	}
	snap := opened.Snapshot
	if len(snap.Answers) != 2 || snap.Answers.Answered() != 0 {
		t.Errorf("answers: got %v, want two empty blanks", snap.Answers)
	}
	if snap.Placeholder != model.NoHintsMessage {
		t.Errorf("placeholder: got %q", snap.Placeholder)
	}

	wf, err := f.svc.Workflow(ctx, alice, 1)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	again, _ := f.svc.Workflow(ctx, alice, 1)
	if wf != again {
		t.Error("Workflow returned a different instance for the question on screen")
	}
}

// openWithSeenHint opens id, requests hints and opens the first level.
func openWithSeenHint(t *testing.T, f *hintFixture, id int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Open(ctx, alice, id); err != nil {
		t.Fatalf("Open: %v", err)
	}
	wf, err := f.svc.Workflow(ctx, alice, id)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if _, err := wf.Request(ctx, workflow.Caller{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := wf.Toggle(ctx, workflow.Caller{}, 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
}

func TestHintServiceReloadKeepsSeenLevels(t *testing.T) {
	f := newHintService(0)
	ctx := context.Background()
	openWithSeenHint(t, f, 1)

	opened, err := f.svc.Open(ctx, alice, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(opened.Snapshot.SeenLevels) != 1 || opened.Snapshot.SeenLevels[0] != 0 {
		t.Errorf("seen levels after reload: %v, want [0]", opened.Snapshot.SeenLevels)
	}
	if len(opened.Snapshot.OpenLevels) != 0 {
		t.Errorf("open levels after reload: %v, want none", opened.Snapshot.OpenLevels)
	}
}

func TestHintServiceQuestionChangeDiscardsState(t *testing.T) {
	f := newHintService(0)
	ctx := context.Background()
	openWithSeenHint(t, f, 1)

	if _, err := f.svc.Open(ctx, alice, 2); err != nil {
		t.Fatalf("Open(2): %v", err)
	}
	if _, err := f.session.Get(ctx, "session:sess-a:seenHints-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("seen hints of question 1 survived the question change: %v", err)
	}

	opened, err := f.svc.Open(ctx, alice, 1)
	if err != nil {
		t.Fatalf("Open(1): %v", err)
	}
	if len(opened.Snapshot.SeenLevels) != 0 {
		t.Errorf("seen levels: %v, want none", opened.Snapshot.SeenLevels)
	}
}

func TestHintServiceSessionsAreIsolated(t *testing.T) {
	f := newHintService(0)
	ctx := context.Background()
	openWithSeenHint(t, f, 1)

	bob := service.Client{DeviceID: "dev-b", SessionID: "sess-b"}
	opened, err := f.svc.Open(ctx, bob, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(opened.Snapshot.SeenLevels) != 0 {
		t.Errorf("another session sees levels %v", opened.Snapshot.SeenLevels)
	}

	a, _ := f.svc.Identity(alice).AnonID(ctx)
	b, _ := f.svc.Identity(bob).AnonID(ctx)
	if a == "" || a == b {
		t.Errorf("anon ids: alice=%q bob=%q", a, b)
	}
	if stored, _ := f.durable.Get(ctx, "device:dev-a:anon_id"); stored != a {
		t.Errorf("durable anon id: got %q, want %q", stored, a)
	}
}

func TestHintServiceSweepIdle(t *testing.T) {
	f := newHintService(time.Minute)
	ctx := context.Background()
	if _, err := f.svc.Open(ctx, alice, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if n := f.svc.SweepIdle(time.Now()); n != 0 {
		t.Errorf("fresh session evicted: %d", n)
	}
	if n := f.svc.SweepIdle(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("idle session: evicted %d, want 1", n)
	}

	// The next request re-opens the question transparently.
	if _, err := f.svc.Workflow(ctx, alice, 1); err != nil {
		t.Errorf("Workflow after sweep: %v", err)
	}
}
