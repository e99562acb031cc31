package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/quizapi"
	"github.com/umtp/assist-gateway/internal/storage"
)

var ErrQuestionNotFound = errors.New("question not found")

// QuestionSource is the read side of the quiz backend. *quizapi.Client implements it.
type QuestionSource interface {
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	NextID(ctx context.Context, id int64) (*int64, error)
	PrevID(ctx context.Context, id int64) (*int64, error)
}

// QuestionPage is a question with its neighbours, as the question page needs it.
type QuestionPage struct {
	Question  *model.Question
	Neighbors model.Neighbors
}

// QuestionService loads questions through a read-through cache. Concurrent
// misses on the same id share one backend call.
type QuestionService struct {
	source QuestionSource
	cache  storage.KV
	group  singleflight.Group
	log    zerolog.Logger
}

// NewQuestionService creates a new QuestionService. A nil cache disables caching.
func NewQuestionService(source QuestionSource, cache storage.KV, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		source: source,
		cache:  cache,
		log:    log.With().Str("component", "question_service").Logger(),
	}
}

// Get returns one question, from cache when possible.
func (s *QuestionService) Get(ctx context.Context, id int64) (*model.Question, error) {
	if q, ok := s.cached(ctx, id); ok {
		return q, nil
	}

	// The load is shared, so it must outlive whichever caller started it.
	// The quiz client bounds it with its own timeout.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		q, err := s.source.GetQuestion(loadCtx, id)
		if err != nil {
			return nil, err
		}
		s.store(loadCtx, q)
		return q, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load question %d: %w", id, ctx.Err())
	case res = <-ch:
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		if errors.Is(err, quizapi.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question %d: %w", id, err)
	}
	if shared {
		s.log.Debug().Int64("question_id", id).Msg("Question load shared")
	}

	q := *v.(*model.Question)
	return &q, nil
}

// Page loads a question and both neighbour ids concurrently. A neighbour lookup
// failure only drops that link.
func (s *QuestionService) Page(ctx context.Context, id int64) (*QuestionPage, error) {
	page := &QuestionPage{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := s.Get(gctx, id)
		if err != nil {
			return err
		}
		page.Question = q
		return nil
	})
	g.Go(func() error {
		next, err := s.source.NextID(gctx, id)
		if err != nil {
			s.log.Warn().Err(err).Int64("question_id", id).Msg("Next question lookup failed")
			return nil
		}
		page.Neighbors.NextID = next
		return nil
	})
	g.Go(func() error {
		prev, err := s.source.PrevID(gctx, id)
		if err != nil {
			s.log.Warn().Err(err).Int64("question_id", id).Msg("Previous question lookup failed")
			return nil
		}
		page.Neighbors.PrevID = prev
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return page, nil
}

// List returns every question, uncached.
func (s *QuestionService) List(ctx context.Context) ([]model.Question, error) {
	questions, err := s.source.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

func (s *QuestionService) cached(ctx context.Context, id int64) (*model.Question, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, config.StorageKey.QuestionPayload(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Int64("question_id", id).Msg("Question cache read failed")
		}
		return nil, false
	}

	var q model.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		s.log.Warn().Err(err).Int64("question_id", id).Msg("Discarding malformed cached question")
		return nil, false
	}
	return &q, true
}

func (s *QuestionService) store(ctx context.Context, q *model.Question) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, config.StorageKey.QuestionPayload(q.ID), string(raw)); err != nil {
		s.log.Warn().Err(err).Int64("question_id", q.ID).Msg("Question cache write failed")
	}
}
