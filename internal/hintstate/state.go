// Package hintstate tracks, per question, which hint levels a student has ever
// opened and which are expanded right now.
//
// The ever-opened set is persisted to session-scoped storage under
// seenHints-{questionId} and survives reloads within the session. The open set
// is transient. Opening a level adds it to both sets; closing removes it from
// the open set only, so the ever-opened set never shrinks until Reset.
package hintstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/storage"
)

var ErrInvalidLevel = errors.New("hint level must be non-negative")

// Store is an explicit keyed store: question id → hint session.
type Store struct {
	kv  storage.KV
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

type session struct {
	everOpened LevelSet
	nowOpen    LevelSet
}

// NewStore creates a Store persisting into the session-scoped kv. A nil kv keeps
// state in memory only.
func NewStore(kv storage.KV, log zerolog.Logger) *Store {
	return &Store{
		kv:       kv,
		log:      log.With().Str("component", "hint_state").Logger(),
		sessions: make(map[int64]*session),
	}
}

// Load reads the persisted ever-opened set of a question and starts a fresh
// in-memory session with nothing expanded. Absent or unreadable data yields an
// empty set.
func (s *Store) Load(ctx context.Context, questionID int64) LevelSet {
	ever := s.read(ctx, questionID)

	s.mu.Lock()
	s.sessions[questionID] = &session{everOpened: ever, nowOpen: LevelSet{}}
	s.mu.Unlock()

	return ever.Clone()
}

// Persist writes everOpened back to storage and adopts it in memory.
func (s *Store) Persist(ctx context.Context, questionID int64, everOpened LevelSet) error {
	s.mu.Lock()
	sess := s.sessionLocked(questionID)
	sess.everOpened = everOpened.Clone()
	s.mu.Unlock()

	return s.write(ctx, questionID, everOpened)
}

// Reset clears both sets of a question, in memory and in storage.
func (s *Store) Reset(ctx context.Context, questionID int64) error {
	s.mu.Lock()
	delete(s.sessions, questionID)
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(ctx, config.StorageKey.SeenHints(questionID)); err != nil {
		return fmt.Errorf("delete seen hints: %w", err)
	}
	return nil
}

// Toggle flips level in the open set. A level that becomes open is also added
// to the ever-opened set. The returned sets are copies. A persist failure is
// returned alongside the updated sets; the in-memory state is kept either way.
func (s *Store) Toggle(ctx context.Context, questionID int64, level int) (nowOpen, everOpened LevelSet, err error) {
	if level < 0 {
		return nil, nil, ErrInvalidLevel
	}

	s.mu.Lock()
	sess, ok := s.sessions[questionID]
	s.mu.Unlock()
	if !ok {
		s.Load(ctx, questionID)
	}

	s.mu.Lock()
	sess = s.sessionLocked(questionID)
	changed := false
	if sess.nowOpen.Contains(level) {
		sess.nowOpen = sess.nowOpen.without(level)
	} else {
		sess.nowOpen = sess.nowOpen.with(level)
		if !sess.everOpened.Contains(level) {
			sess.everOpened = sess.everOpened.with(level)
			changed = true
		}
	}
	nowOpen, everOpened = sess.nowOpen.Clone(), sess.everOpened.Clone()
	s.mu.Unlock()

	if changed {
		err = s.write(ctx, questionID, everOpened)
	}
	return nowOpen, everOpened, err
}

// Snapshot returns copies of both sets without touching storage.
func (s *Store) Snapshot(questionID int64) (nowOpen, everOpened LevelSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[questionID]
	if !ok {
		return LevelSet{}, LevelSet{}
	}
	return sess.nowOpen.Clone(), sess.everOpened.Clone()
}

// Forget drops the in-memory session of a question but keeps what is persisted.
func (s *Store) Forget(questionID int64) {
	s.mu.Lock()
	delete(s.sessions, questionID)
	s.mu.Unlock()
}

func (s *Store) sessionLocked(questionID int64) *session {
	sess, ok := s.sessions[questionID]
	if !ok {
		sess = &session{everOpened: LevelSet{}, nowOpen: LevelSet{}}
		s.sessions[questionID] = sess
	}
	return sess
}

func (s *Store) read(ctx context.Context, questionID int64) LevelSet {
	if s.kv == nil {
		return LevelSet{}
	}

	raw, err := s.kv.Get(ctx, config.StorageKey.SeenHints(questionID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Int64("question_id", questionID).Msg("Read seen hints failed")
		}
		return LevelSet{}
	}

	var levels []int
	if err := json.Unmarshal([]byte(raw), &levels); err != nil {
		s.log.Warn().Err(err).Int64("question_id", questionID).Msg("Discarding malformed seen hints")
		return LevelSet{}
	}
	return normalize(levels)
}

func (s *Store) write(ctx context.Context, questionID int64, everOpened LevelSet) error {
	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(everOpened.Clone())
	if err != nil {
		return fmt.Errorf("encode seen hints: %w", err)
	}
	if err := s.kv.Set(ctx, config.StorageKey.SeenHints(questionID), string(raw)); err != nil {
		return fmt.Errorf("persist seen hints: %w", err)
	}
	return nil
}
