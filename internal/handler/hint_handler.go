package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umtp/assist-gateway/internal/middleware"
	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/validator"
	"github.com/umtp/assist-gateway/internal/workflow"
)

// HintHandler drives the hint panel of the question on screen.
type HintHandler struct {
	hintService *service.HintService
}

// NewHintHandler creates a new HintHandler.
func NewHintHandler(hintService *service.HintService) *HintHandler {
	return &HintHandler{hintService: hintService}
}

type answerURI struct {
	ID    int64  `uri:"id" json:"id" binding:"required,min=1"`
	Blank string `uri:"blank" json:"blank" binding:"required,blank"`
}

// AnswerRequest selects a choice for a blank; an empty value clears it.
type AnswerRequest struct {
	Value string `json:"value" binding:"max=16"`
}

// RatingRequest scores one displayed hint.
type RatingRequest struct {
	Score  int    `json:"score" binding:"required,min=1,max=5"`
	Reason string `json:"reason" binding:"max=1000"`
}

// resolve finds the caller's workflow for :id, writing the failure response.
func (h *HintHandler) resolve(c *gin.Context) (*workflow.Workflow, bool) {
	id, ok := parseQuestionID(c)
	if !ok {
		return nil, false
	}
	wf, err := h.hintService.Workflow(c.Request.Context(), middleware.GetClient(c), id)
	if err != nil {
		failFrom(c, err)
		return nil, false
	}
	return wf, true
}

// reply sends the panel, or the panel alongside the error for rejected actions.
func reply(c *gin.Context, snap workflow.Snapshot, err error) {
	if err != nil {
		status, code := classify(err)
		response.FailWithData(c, status, code, snap)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// GetState godoc
// GET /api/v1/questions/:id/state
func (h *HintHandler) GetState(c *gin.Context) {
	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, wf.Snapshot())
}

// SetAnswer godoc
// PUT /api/v1/questions/:id/answers/:blank
func (h *HintHandler) SetAnswer(c *gin.Context) {
	var uri answerURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	var req AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	snap, err := wf.SetAnswer(c.Request.Context(), middleware.GetCaller(c), uri.Blank, req.Value)
	reply(c, snap, err)
}

// RequestHints godoc
// POST /api/v1/questions/:id/hints
// Runs the pre-check and hint generation. Blocks until the backend answers.
// Generation keeps going if the browser aborts; the panel shows the result.
func (h *HintHandler) RequestHints(c *gin.Context) {
	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	snap, err := wf.Request(context.WithoutCancel(c.Request.Context()), middleware.GetCaller(c))
	reply(c, snap, err)
}

// ToggleHint godoc
// POST /api/v1/questions/:id/hints/:level/toggle
func (h *HintHandler) ToggleHint(c *gin.Context) {
	level, ok := parseLevel(c)
	if !ok {
		return
	}
	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	snap, err := wf.Toggle(c.Request.Context(), middleware.GetCaller(c), level)
	reply(c, snap, err)
}

// RateHint godoc
// POST /api/v1/questions/:id/hints/:level/rating
func (h *HintHandler) RateHint(c *gin.Context) {
	level, ok := parseLevel(c)
	if !ok {
		return
	}

	var req RatingRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	snap, err := wf.Rate(c.Request.Context(), middleware.GetCaller(c), level, req.Score, req.Reason)
	reply(c, snap, err)
}

// Submit godoc
// POST /api/v1/questions/:id/submit
// Records the submission, then clears hints and seen levels.
func (h *HintHandler) Submit(c *gin.Context) {
	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	snap, err := wf.Submit(c.Request.Context(), middleware.GetCaller(c))
	reply(c, snap, err)
}

// Reset godoc
// POST /api/v1/questions/:id/reset
// Clears hints and seen levels, e.g. when a tutorial restarts.
func (h *HintHandler) Reset(c *gin.Context) {
	wf, ok := h.resolve(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, wf.Reset(c.Request.Context()))
}
