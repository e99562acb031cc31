package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/middleware"
	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/validator"
	ws "github.com/umtp/assist-gateway/internal/websocket"
	"github.com/umtp/assist-gateway/internal/workflow"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the hint panel of one question over a WebSocket.
type WSHandler struct {
	hintService *service.HintService
	limiter     *middleware.RateLimiter
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter may be nil.
func NewWSHandler(hintService *service.HintService, limiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hintService: hintService,
		limiter:     limiter,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// session is the per-connection context of the action handlers.
type session struct {
	conn   *ws.Conn
	wf     *workflow.Workflow
	client service.Client
	caller workflow.Caller
	log    zerolog.Logger
	// pending tracks hint requests answering from their own goroutine.
	pending sync.WaitGroup
}

// HintStream godoc
// WS /ws/v1/questions/:id/stream
// Every action is answered with the full panel ("state") or an "error".
// A hint request first pushes the interim checking state, then the result.
func (h *WSHandler) HintStream(c *gin.Context) {
	id, ok := parseQuestionID(c)
	if !ok {
		return
	}

	client := middleware.GetClient(c)
	wf, err := h.hintService.Workflow(c.Request.Context(), client, id)
	if err != nil {
		failFrom(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	s := &session{
		conn:   conn,
		wf:     wf,
		client: client,
		caller: middleware.GetCaller(c),
		log: h.log.With().
			Int64("question_id", id).
			Str("session", client.SessionID).
			Logger(),
	}
	defer s.pending.Wait()

	s.log.Info().Msg("Hint stream connected")
	_ = conn.WriteState(wf.Snapshot(), false)

	// Backend calls outlive a dropped connection; the workflow keeps the result.
	ctx := context.WithoutCancel(c.Request.Context())

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeErr(response.ErrInvalidPayload)
			continue
		}

		switch env.Action {
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionAnswer:
			h.handleAnswer(ctx, s, data)
		case ws.ActionRequestHint:
			h.handleRequest(ctx, s)
		case ws.ActionToggleHint:
			h.handleToggle(ctx, s, data)
		case ws.ActionRateHint:
			h.handleRate(ctx, s, data)
		case ws.ActionSubmit:
			snap, err := s.wf.Submit(ctx, s.caller)
			s.writeResult(snap, err)
		case ws.ActionReset:
			_ = conn.WriteState(s.wf.Reset(ctx), false)
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			s.writeErr(response.ErrInvalidPayload)
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, s *session, data []byte) {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(data, &msg); err != nil || !validator.IsBlankLabel(msg.Blank) {
		s.writeErr(response.ErrUnknownBlank)
		return
	}
	snap, err := s.wf.SetAnswer(ctx, s.caller, msg.Blank, msg.Value)
	s.writeResult(snap, err)
}

// handleRequest answers immediately with the checking state and delivers the
// outcome from a goroutine, so toggles keep working during generation.
func (h *WSHandler) handleRequest(ctx context.Context, s *session) {
	if h.limiter != nil && !h.limiter.Allow(s.client.SessionID) {
		s.writeErr(response.ErrRateLimitExceeded)
		return
	}

	interim, finish, err := s.wf.Begin()
	if err != nil {
		s.writeResult(interim, err)
		return
	}
	_ = s.conn.WriteState(interim, true)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.conn.WriteState(finish(ctx, s.caller), false); err != nil {
			s.log.Debug().Err(err).Msg("Hint result not delivered")
		}
	}()
}

func (h *WSHandler) handleToggle(ctx context.Context, s *session, data []byte) {
	var msg ws.HintLevelRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		s.writeErr(response.ErrInvalidPayload)
		return
	}
	snap, err := s.wf.Toggle(ctx, s.caller, msg.Level)
	s.writeResult(snap, err)
}

func (h *WSHandler) handleRate(ctx context.Context, s *session, data []byte) {
	var msg ws.RateHintRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		s.writeErr(response.ErrInvalidPayload)
		return
	}
	snap, err := s.wf.Rate(ctx, s.caller, msg.Level, msg.Score, msg.Reason)
	s.writeResult(snap, err)
}

func (s *session) writeResult(snap workflow.Snapshot, err error) {
	if err != nil {
		_, code := classify(err)
		s.writeErr(code)
		return
	}
	_ = s.conn.WriteState(snap, false)
}

func (s *session) writeErr(code response.ErrCode) {
	_ = s.conn.WriteError(string(code), response.GetMessage(code))
}
