// Package workflow runs the hint panel of one question: the correctness
// pre-check, hint generation, hint visibility and the interaction events that
// go with each step.
//
// A Workflow never returns transport errors. Every outcome is a Snapshot the UI
// can render; the returned errors are caller mistakes (unknown blank, level out
// of range, a request already in flight). Events are handed to an EventSink and
// never awaited.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/hintstate"
	"github.com/umtp/assist-gateway/internal/metrics"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/quizapi"
)

// State of the hint request cycle.
type State string

const (
	StateIdle          State = "idle"
	StateChecking      State = "checking"
	StateHintsReady    State = "hints_ready"
	StateAnswerInvalid State = "answer_invalid"
)

var (
	ErrRequestInFlight = errors.New("a hint request is already running")
	ErrInvalidLevel    = errors.New("hint level out of range")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// Backend is the part of the quiz backend the workflow calls.
type Backend interface {
	Check(ctx context.Context, questionID int64, answers model.AnswerSet) (quizapi.CheckResult, error)
	Hints(ctx context.Context, questionID int64, answers model.AnswerSet) ([]string, error)
}

// EventSink accepts interaction events without blocking. *worker.LogWorker implements it.
type EventSink interface {
	Enqueue(ctx context.Context, p eventlog.Params) bool
}

// Caller identifies who triggered an action. Both fields are optional.
type Caller struct {
	StudentID string
	Token     eventlog.TokenFunc
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Backend  Backend
	Store    *hintstate.Store
	Events   EventSink
	Identity eventlog.AnonIDSource
	Log      zerolog.Logger
}

// Options tune a Workflow.
type Options struct {
	// Precheck asks the backend whether the answers are correct before
	// generating hints. Some backends only expose the hints endpoint.
	Precheck bool
}

// Workflow is the hint panel of one question for one student session.
type Workflow struct {
	deps     Deps
	precheck bool
	log      zerolog.Logger

	mu       sync.Mutex
	question *model.Question
	answers  model.AnswerSet
	hints    []string
	state    State
	loading  bool
	epoch    uint64
	lastUsed time.Time
}

// New creates the workflow of question q with an empty AnswerSet.
func New(q *model.Question, deps Deps, opts Options) *Workflow {
	return &Workflow{
		deps:     deps,
		precheck: opts.Precheck,
		log:      deps.Log.With().Str("component", "hint_workflow").Int64("question_id", q.ID).Logger(),
		question: q,
		answers:  model.NewAnswerSet(q),
		hints:    []string{},
		state:    StateIdle,
		lastUsed: time.Now(),
	}
}

// QuestionID returns the id of the workflow's question.
func (w *Workflow) QuestionID() int64 {
	return w.question.ID
}

// Open loads the persisted ever-opened set of the question. Call once after New.
func (w *Workflow) Open(ctx context.Context) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.deps.Store.Load(ctx, w.question.ID)
	w.touchLocked()
	return w.snapshotLocked()
}

// Snapshot returns the current panel state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// LastUsed reports when the workflow last handled an action.
func (w *Workflow) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// SetAnswer records the choice of one blank and journals answer_change.
// value may be empty (unanswered) or one of the question's choice labels.
func (w *Workflow) SetAnswer(ctx context.Context, caller Caller, label, value string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if value != "" {
		code, ok := w.question.ChoiceCode(value)
		if !ok {
			return w.snapshotLocked(), model.ErrUnknownChoice
		}
		value = code
	}
	if err := w.answers.Set(label, value); err != nil {
		return w.snapshotLocked(), err
	}

	w.touchLocked()
	w.emitLocked(ctx, caller, model.EventAnswerChange, nil)
	return w.snapshotLocked(), nil
}

// Request runs one hint request: pre-check, then generation. It blocks until
// the backend answers; the lock is released meanwhile so hints already shown
// can still be toggled. The only error is ErrRequestInFlight.
func (w *Workflow) Request(ctx context.Context, caller Caller) (Snapshot, error) {
	snap, finish, err := w.Begin()
	if err != nil {
		return snap, err
	}
	return finish(ctx, caller), nil
}

// Begin moves the panel to Checking and returns that interim state together
// with the function that performs the backend calls and settles the result.
// Streaming callers push the interim state before calling finish.
func (w *Workflow) Begin() (Snapshot, func(ctx context.Context, caller Caller) Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateChecking {
		metrics.HintRequests.WithLabelValues("busy").Inc()
		return w.snapshotLocked(), nil, ErrRequestInFlight
	}
	w.state = StateChecking
	w.loading = true
	w.touchLocked()
	epoch := w.epoch
	answers := w.answers.Clone()

	finish := func(ctx context.Context, caller Caller) Snapshot {
		next, hints := w.run(ctx, answers)

		w.mu.Lock()
		defer w.mu.Unlock()

		// Reset or submit happened while the backend was working; the result
		// belongs to a panel that no longer exists.
		if w.epoch != epoch {
			w.log.Debug().Msg("Discarding stale hint result")
			return w.snapshotLocked()
		}

		w.state = next
		w.hints = hints
		w.loading = false
		w.touchLocked()

		if next == StateHintsReady {
			w.emitLocked(ctx, caller, model.EventHintRequest, nil)
		}
		return w.snapshotLocked()
	}
	return w.snapshotLocked(), finish, nil
}

// run performs the backend calls of a request and returns the next state and
// the hint sequence to display.
func (w *Workflow) run(ctx context.Context, answers model.AnswerSet) (State, []string) {
	qid := w.question.ID

	if w.precheck {
		res, err := w.deps.Backend.Check(ctx, qid, answers)
		if err != nil {
			w.log.Error().Err(err).Msg("Answer check failed")
			metrics.HintRequests.WithLabelValues("failed").Inc()
			return StateIdle, []string{model.HintFailureMessage}
		}
		if !res.Correct {
			w.log.Info().Str("backend_message", res.Message).Msg("Answers contain a mistake, hints withheld")
			metrics.HintRequests.WithLabelValues("invalid").Inc()
			return StateAnswerInvalid, []string{model.AnswerInvalidMessage}
		}
	}

	hints, err := w.deps.Backend.Hints(ctx, qid, answers)
	if err != nil {
		w.log.Error().Err(err).Msg("Hint generation failed")
		metrics.HintRequests.WithLabelValues("failed").Inc()
		return StateIdle, []string{model.HintFailureMessage}
	}

	metrics.HintRequests.WithLabelValues("ready").Inc()
	out := make([]string, len(hints))
	copy(out, hints)
	return StateHintsReady, out
}

// Toggle expands or collapses a displayed hint level (0-based) and journals
// open_hint_level_<level+1>.
func (w *Workflow) Toggle(ctx context.Context, caller Caller, level int) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if level < 0 || level >= len(w.hints) {
		return w.snapshotLocked(), ErrInvalidLevel
	}

	if _, _, err := w.deps.Store.Toggle(ctx, w.question.ID, level); err != nil {
		w.log.Warn().Err(err).Int("level", level).Msg("Seen hints not persisted")
	}

	w.touchLocked()
	w.emitLocked(ctx, caller, eventlog.OpenHintEvent(level), nil)
	return w.snapshotLocked(), nil
}

// Rate records a 1–5 usefulness score for a displayed hint level.
func (w *Workflow) Rate(ctx context.Context, caller Caller, level, score int, reason string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if level < 0 || level >= len(w.hints) {
		return w.snapshotLocked(), ErrInvalidLevel
	}
	if score < 1 || score > 5 {
		return w.snapshotLocked(), ErrInvalidRating
	}

	w.touchLocked()
	w.emitLocked(ctx, caller, eventlog.RateHintEvent(level), func(p *eventlog.Params) {
		p.Rating = &score
		p.Comment = reason
	})
	return w.snapshotLocked(), nil
}

// Submit journals submit_answer with the state as submitted, then clears the
// hints and the seen set. Answers are kept on screen.
func (w *Workflow) Submit(ctx context.Context, caller Caller) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emitLocked(ctx, caller, model.EventSubmitAnswer, nil)
	w.clearLocked(ctx)
	return w.snapshotLocked(), nil
}

// Reset clears the hints and the seen set, e.g. when a tutorial restarts.
func (w *Workflow) Reset(ctx context.Context) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearLocked(ctx)
	return w.snapshotLocked()
}

// Discard drops the question's hint state for good; used when the session
// moves to another question. An in-flight request result is ignored.
func (w *Workflow) Discard(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.epoch++
	if err := w.deps.Store.Reset(ctx, w.question.ID); err != nil {
		w.log.Warn().Err(err).Msg("Seen hints not cleared")
	}
}

// Release drops the in-memory hint session but keeps what is persisted, so the
// question can be reopened later in the same session.
func (w *Workflow) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.epoch++
	w.deps.Store.Forget(w.question.ID)
}

func (w *Workflow) clearLocked(ctx context.Context) {
	w.epoch++
	w.hints = []string{}
	w.state = StateIdle
	w.loading = false
	w.touchLocked()

	if err := w.deps.Store.Reset(ctx, w.question.ID); err != nil {
		w.log.Warn().Err(err).Msg("Seen hints not cleared")
	}
}

func (w *Workflow) touchLocked() {
	w.lastUsed = time.Now()
}

func (w *Workflow) emitLocked(ctx context.Context, caller Caller, name string, edit func(*eventlog.Params)) {
	if w.deps.Events == nil {
		return
	}

	nowOpen, everOpened := w.deps.Store.Snapshot(w.question.ID)
	qid := w.question.ID
	hints := make([]string, len(w.hints))
	copy(hints, w.hints)

	p := eventlog.Params{
		QuestionID: &qid,
		StudentID:  caller.StudentID,
		EventName:  name,
		Answers:    w.answers.Clone(),
		SeenHints:  everOpened,
		OpenHints:  nowOpen,
		Hints:      hints,
		Identity:   w.deps.Identity,
		Token:      caller.Token,
	}
	if edit != nil {
		edit(&p)
	}
	w.deps.Events.Enqueue(ctx, p)
}
