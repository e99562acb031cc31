package eventlog

import (
	"context"
	"strconv"
	"time"

	"github.com/umtp/assist-gateway/internal/model"
)

// DefaultTimeout bounds one delivery to the log endpoint.
const DefaultTimeout = 8 * time.Second

// TokenFunc obtains a bearer token for the log endpoint.
type TokenFunc func(ctx context.Context) (string, error)

// AnonIDSource resolves the anonymous device id. *identity.Provider implements it.
type AnonIDSource interface {
	AnonID(ctx context.Context) (string, bool)
}

// Params describes one interaction to journal. Slices are 0-based hint levels.
type Params struct {
	QuestionID *int64
	StudentID  string
	EventName  string
	Answers    model.AnswerSet
	SeenHints  []int
	OpenHints  []int
	Hints      []string
	Rating     *int
	Comment    string

	Identity AnonIDSource
	Token    TokenFunc
	// Timeout overrides the logger default when positive.
	Timeout time.Duration
}

// BuildEvent assembles the LogEvent for p. Hint levels are re-indexed 1-based.
func BuildEvent(p Params, anonID string, hasAnonID bool, now time.Time) model.LogEvent {
	open := make(map[int]bool, len(p.OpenHints))
	for _, lvl := range p.OpenHints {
		open[lvl] = true
	}

	status := make(map[string]bool, len(p.SeenHints))
	for _, lvl := range p.SeenHints {
		status[strconv.Itoa(lvl+1)] = open[lvl]
	}

	hints := make(map[string]string, len(p.Hints))
	for i, h := range p.Hints {
		hints[strconv.Itoa(i+1)] = h
	}

	ev := model.LogEvent{
		QuestionID:     p.QuestionID,
		EventName:      p.EventName,
		Answers:        p.Answers.Clone(),
		HintOpenStatus: status,
		Hints:          hints,
		Rating:         p.Rating,
		Comment:        p.Comment,
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
	}
	if p.StudentID != "" {
		sid := p.StudentID
		ev.StudentID = &sid
	}
	if hasAnonID {
		ev.AnonID = &anonID
	}
	return ev
}

// OpenHintEvent names the toggle event of a 0-based level.
func OpenHintEvent(level int) string {
	return "open_hint_level_" + strconv.Itoa(level+1)
}

// RateHintEvent names the rating event of a 0-based level.
func RateHintEvent(level int) string {
	return "rate_hint_level_" + strconv.Itoa(level+1)
}
