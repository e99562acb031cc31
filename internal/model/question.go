package model

import (
	"strings"
	"time"
)

// Question is a fill-in-the-blank UML question as served by the quiz backend.
type Question struct {
	ID                 int64     `json:"id"`
	ProblemDescription string    `json:"problem_description"`
	Question           string    `json:"question"`
	Answer             string    `json:"answer,omitempty"`
	Image              string    `json:"image,omitempty"`
	Choices            []Choice  `json:"choices"`
	CreatedAt          time.Time `json:"created_at"`
}

// Choice is one selectable word. Label is the choice code ("A", "B", …).
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
}

// Neighbors holds the adjacent question ids, nil when there is none.
type Neighbors struct {
	NextID *int64 `json:"next_id"`
	PrevID *int64 `json:"prev_id"`
}

// ChoiceCode resolves code to the question's own spelling of that choice label.
// Comparison is case-insensitive; labels are entered by hand on the authoring side.
func (q *Question) ChoiceCode(code string) (string, bool) {
	code = strings.TrimSpace(code)
	for _, c := range q.Choices {
		if strings.EqualFold(c.Label, code) {
			return c.Label, true
		}
	}
	return "", false
}

// Summary trims the problem description for list views.
func (q *Question) Summary(max int) string {
	s := strings.TrimSpace(q.ProblemDescription)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
