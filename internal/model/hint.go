package model

// HintCategory names the kind of guidance a hint level gives.
type HintCategory string

const (
	HintOrientation     HintCategory = "orientation"
	HintPartialAnswer   HintCategory = "partial_answer"
	HintProceduralGuide HintCategory = "procedural_guide"
)

// Messages shown in the hint panel in place of generated hints.
const (
	NoHintsMessage       = "まだヒントはありません。"
	AnswerInvalidMessage = "現在の回答には誤りがあります。修正してから再度ヒントを要求してください。"
	HintFailureMessage   = "通信失敗"
)

// CategoryOf maps a 0-based hint level to its category. The backend may return
// more than three hints; everything past the second is procedural.
func CategoryOf(level int) HintCategory {
	switch level {
	case 0:
		return HintOrientation
	case 1:
		return HintPartialAnswer
	default:
		return HintProceduralGuide
	}
}

// Badge is the Japanese label the UI shows next to a level.
func (c HintCategory) Badge() string {
	switch c {
	case HintOrientation:
		return "方向付け"
	case HintPartialAnswer:
		return "部分解答"
	default:
		return "手順ガイド"
	}
}

// HintView is one row of the hint panel.
type HintView struct {
	Level    int          `json:"level"`
	Number   int          `json:"number"`
	Category HintCategory `json:"category"`
	Badge    string       `json:"badge"`
	Text     string       `json:"text"`
	Seen     bool         `json:"seen"`
	Open     bool         `json:"open"`
}
