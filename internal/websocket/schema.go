package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer      Action = "answer"
	ActionRequestHint Action = "request_hint"
	ActionToggleHint  Action = "toggle_hint"
	ActionRateHint    Action = "rate_hint"
	ActionSubmit      Action = "submit"
	ActionReset       Action = "reset"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects a choice for one blank. An empty value clears it.
type AnswerRequest struct {
	Action Action `json:"action"`
	Blank  string `json:"blank"`
	Value  string `json:"value"`
}

// HintLevelRequest targets one displayed hint (0-based).
type HintLevelRequest struct {
	Action Action `json:"action"`
	Level  int    `json:"level"`
}

// RateHintRequest scores one displayed hint.
type RateHintRequest struct {
	Action Action `json:"action"`
	Level  int    `json:"level"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// StateResponse carries the full hint panel after every action. Pending is
// set on the interim state pushed while a hint request is running.
type StateResponse struct {
	Event   Event       `json:"event"`
	Pending bool        `json:"pending,omitempty"`
	State   interface{} `json:"state"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
