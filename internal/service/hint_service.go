package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/hintstate"
	"github.com/umtp/assist-gateway/internal/identity"
	"github.com/umtp/assist-gateway/internal/metrics"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/storage"
	"github.com/umtp/assist-gateway/internal/workflow"
)

var ErrMissingSession = errors.New("client session is not established")

// Client identifies the browser behind a request: DeviceID is durable,
// SessionID lives as long as the browser session.
type Client struct {
	DeviceID  string
	SessionID string
}

// Stores are the two storage scopes the gateway keeps on behalf of browsers.
type Stores struct {
	Durable storage.KV
	Session storage.KV
}

// HintOptions tune the workflows created by HintService.
type HintOptions struct {
	Precheck bool
	IdleTTL  time.Duration
}

// OpenedQuestion is what opening a question returns.
type OpenedQuestion struct {
	Page     *QuestionPage
	Snapshot workflow.Snapshot
}

// HintService keeps, per browser session, the hint workflow of the question on
// screen. Moving to another question discards the previous question's state.
type HintService struct {
	questions *QuestionService
	backend   workflow.Backend
	events    workflow.EventSink
	stores    Stores
	opts      HintOptions
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*clientSession
}

type clientSession struct {
	store    *hintstate.Store
	identity *identity.Provider
	current  *workflow.Workflow
	lastUsed time.Time
}

// NewHintService creates a new HintService.
func NewHintService(
	questions *QuestionService,
	backend workflow.Backend,
	events workflow.EventSink,
	stores Stores,
	opts HintOptions,
	log zerolog.Logger,
) *HintService {
	return &HintService{
		questions: questions,
		backend:   backend,
		events:    events,
		stores:    stores,
		opts:      opts,
		log:       log.With().Str("component", "hint_service").Logger(),
		sessions:  make(map[string]*clientSession),
	}
}

// Open shows question id to the client: a fresh workflow with an empty
// AnswerSet and the seen hints persisted for this session.
func (s *HintService) Open(ctx context.Context, client Client, id int64) (*OpenedQuestion, error) {
	if client.SessionID == "" {
		return nil, ErrMissingSession
	}

	page, err := s.questions.Page(ctx, id)
	if err != nil {
		return nil, err
	}

	wf := s.replace(ctx, client, page.Question)
	return &OpenedQuestion{Page: page, Snapshot: wf.Open(ctx)}, nil
}

// Workflow returns the client's workflow for question id, opening the question
// when another one (or none) is on screen.
func (s *HintService) Workflow(ctx context.Context, client Client, id int64) (*workflow.Workflow, error) {
	if client.SessionID == "" {
		return nil, ErrMissingSession
	}

	s.mu.Lock()
	sess, ok := s.sessions[client.SessionID]
	if ok && sess.current != nil && sess.current.QuestionID() == id {
		sess.lastUsed = time.Now()
		wf := sess.current
		s.mu.Unlock()
		return wf, nil
	}
	s.mu.Unlock()

	q, err := s.questions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	wf := s.replace(ctx, client, q)
	wf.Open(ctx)
	return wf, nil
}

// replace installs a new workflow for q as the session's current one.
func (s *HintService) replace(ctx context.Context, client Client, q *model.Question) *workflow.Workflow {
	s.mu.Lock()
	sess := s.sessionLocked(client)
	prev := sess.current
	wf := workflow.New(q, workflow.Deps{
		Backend:  s.backend,
		Store:    sess.store,
		Events:   s.events,
		Identity: sess.identity,
		Log:      s.log,
	}, workflow.Options{Precheck: s.opts.Precheck})
	sess.current = wf
	sess.lastUsed = time.Now()
	live := len(s.sessions)
	s.mu.Unlock()

	metrics.LiveWorkflows.Set(float64(live))

	switch {
	case prev == nil:
	case prev.QuestionID() == q.ID:
		// reload of the same page keeps the seen levels
		prev.Release()
	default:
		s.log.Debug().
			Int64("from", prev.QuestionID()).
			Int64("to", q.ID).
			Msg("Question changed, discarding hint state")
		prev.Discard(ctx)
	}
	return wf
}

// Identity returns the anonymous id source of the client's device.
func (s *HintService) Identity(client Client) *identity.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(client).identity
}

// SweepIdle drops sessions idle for longer than the idle TTL. What they
// persisted stays in the session store until it expires there.
func (s *HintService) SweepIdle(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	var evicted []*workflow.Workflow
	for id, sess := range s.sessions {
		last := sess.lastUsed
		// WebSocket connections act on the workflow directly.
		if sess.current != nil && sess.current.LastUsed().After(last) {
			last = sess.current.LastUsed()
		}
		if now.Sub(last) < s.opts.IdleTTL {
			continue
		}
		if sess.current != nil {
			evicted = append(evicted, sess.current)
		}
		delete(s.sessions, id)
	}
	live := len(s.sessions)
	s.mu.Unlock()

	for _, wf := range evicted {
		wf.Release()
	}
	metrics.LiveWorkflows.Set(float64(live))
	return len(evicted)
}

func (s *HintService) sessionLocked(client Client) *clientSession {
	sess, ok := s.sessions[client.SessionID]
	if ok {
		return sess
	}

	var sessionKV, durableKV storage.KV
	if s.stores.Session != nil {
		sessionKV = storage.WithPrefix(s.stores.Session, config.StorageKey.SessionNamespace(client.SessionID))
	}
	if s.stores.Durable != nil && client.DeviceID != "" {
		durableKV = storage.WithPrefix(s.stores.Durable, config.StorageKey.DeviceNamespace(client.DeviceID))
	}

	sess = &clientSession{
		store:    hintstate.NewStore(sessionKV, s.log),
		identity: identity.NewProvider(durableKV, s.log),
		lastUsed: time.Now(),
	}
	s.sessions[client.SessionID] = sess
	return sess
}
