package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umtp/assist-gateway/internal/middleware"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/workflow"
)

const summaryLength = 60

// QuestionHandler serves the question list and opens question pages.
type QuestionHandler struct {
	questionService *service.QuestionService
	hintService     *service.HintService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, hintService *service.HintService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService, hintService: hintService}
}

type questionSummary struct {
	ID      int64  `json:"id"`
	Summary string `json:"summary"`
}

// QuestionPage is the payload of an opened question.
type QuestionPage struct {
	Question  model.Question    `json:"question"`
	Neighbors model.Neighbors   `json:"neighbors"`
	HintPanel workflow.Snapshot `json:"hint_panel"`
}

// ListQuestions godoc
// GET /api/v1/questions
// Lists every question with a shortened problem description.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questionService.List(c.Request.Context())
	if err != nil {
		failFrom(c, err)
		return
	}

	items := make([]questionSummary, len(questions))
	for i := range questions {
		items[i] = questionSummary{ID: questions[i].ID, Summary: questions[i].Summary(summaryLength)}
	}
	response.Success(c, http.StatusOK, gin.H{"questions": items})
}

// OpenQuestion godoc
// POST /api/v1/questions/:id/open
// Shows a question: loads it with its neighbours and starts a fresh hint panel.
// Opening a different question discards the previous question's hint state.
func (h *QuestionHandler) OpenQuestion(c *gin.Context) {
	id, ok := parseQuestionID(c)
	if !ok {
		return
	}

	opened, err := h.hintService.Open(c.Request.Context(), middleware.GetClient(c), id)
	if err != nil {
		failFrom(c, err)
		return
	}

	response.Success(c, http.StatusOK, QuestionPage{
		Question:  publicQuestion(opened.Page.Question),
		Neighbors: opened.Page.Neighbors,
		HintPanel: opened.Snapshot,
	})
}

// publicQuestion strips the answer key before a question leaves the gateway.
func publicQuestion(q *model.Question) model.Question {
	out := *q
	out.Answer = ""
	return out
}
