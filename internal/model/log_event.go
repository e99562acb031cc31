package model

// LogEvent is one journaled student interaction, posted to {baseURL}/api/log.
// Hint levels are re-indexed 1-based in both maps. HintOpenStatus has one key per
// ever-opened level; the value tells whether that level is currently expanded.
type LogEvent struct {
	QuestionID     *int64            `json:"question_id"`
	StudentID      *string           `json:"student_id,omitempty"`
	EventName      string            `json:"event_name"`
	Answers        AnswerSet         `json:"answers"`
	HintOpenStatus map[string]bool   `json:"hint_open_status"`
	Hints          map[string]string `json:"hints"`
	AnonID         *string           `json:"anon_id"`
	Rating         *int              `json:"rating,omitempty"`
	Comment        string            `json:"comment,omitempty"`
	Timestamp      string            `json:"timestamp"`
}

// Interaction event names.
const (
	EventHintRequest  = "hint_request"
	EventAnswerChange = "answer_change"
	EventSubmitAnswer = "submit_answer"
)
