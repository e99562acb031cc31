package workflow

import (
	"github.com/umtp/assist-gateway/internal/model"
)

// Snapshot is what the hint panel renders.
type Snapshot struct {
	QuestionID int64            `json:"question_id"`
	State      State            `json:"state"`
	Loading    bool             `json:"loading"`
	Answers    model.AnswerSet  `json:"answers"`
	Hints      []model.HintView `json:"hints"`
	SeenLevels []int            `json:"seen_levels"`
	OpenLevels []int            `json:"open_levels"`
	// Placeholder is the panel text while there are no hints at all.
	Placeholder string `json:"placeholder,omitempty"`
}

// Texts returns the displayed hint sequence.
func (s Snapshot) Texts() []string {
	out := make([]string, len(s.Hints))
	for i, h := range s.Hints {
		out[i] = h.Text
	}
	return out
}

func (w *Workflow) snapshotLocked() Snapshot {
	nowOpen, everOpened := w.deps.Store.Snapshot(w.question.ID)

	views := make([]model.HintView, len(w.hints))
	for i, text := range w.hints {
		cat := model.CategoryOf(i)
		views[i] = model.HintView{
			Level:    i,
			Number:   i + 1,
			Category: cat,
			Badge:    cat.Badge(),
			Text:     text,
			Seen:     everOpened.Contains(i),
			Open:     nowOpen.Contains(i),
		}
	}

	snap := Snapshot{
		QuestionID: w.question.ID,
		State:      w.state,
		Loading:    w.loading,
		Answers:    w.answers.Clone(),
		Hints:      views,
		SeenLevels: everOpened.Sorted(),
		OpenLevels: nowOpen.Sorted(),
	}
	if len(views) == 0 {
		snap.Placeholder = model.NoHintsMessage
	}
	return snap
}
