// Package quizapi is the HTTP client of the quiz backend: questions, the answer
// correctness check and hint generation.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/umtp/assist-gateway/internal/model"
)

var ErrNotFound = errors.New("quizapi: not found")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("quizapi: %s %s: status %d", e.Method, e.Path, e.Code)
}

// CheckResult is the backend verdict on an AnswerSet.
type CheckResult struct {
	Correct bool   `json:"correct"`
	Message string `json:"message,omitempty"`
}

type answersBody struct {
	Answers model.AnswerSet `json:"answers"`
}

type hintsResponse struct {
	Hints []string `json:"hints"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// Client talks to one backend base URL.
type Client struct {
	baseURL     string
	http        *http.Client
	timeout     time.Duration
	hintTimeout time.Duration
}

// NewHTTPClient returns an http.Client whose transport records client spans.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// New creates a Client. Hint generation runs an LLM on the backend and can take
// a couple of minutes, so it gets its own, longer timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		baseURL:     baseURL,
		http:        httpClient,
		timeout:     15 * time.Second,
		hintTimeout: 3 * time.Minute,
	}
}

// GetQuestion loads one question with its choices.
func (c *Client) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, c.timeout, http.MethodGet, "/question/"+strconv.FormatInt(id, 10), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestions loads every question.
func (c *Client) ListQuestions(ctx context.Context) ([]model.Question, error) {
	var qs []model.Question
	if err := c.do(ctx, c.timeout, http.MethodGet, "/questions", nil, &qs); err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return qs, nil
}

// NextID returns the id after id, or nil when id is the last question.
func (c *Client) NextID(ctx context.Context, id int64) (*int64, error) {
	return c.neighbor(ctx, id, "next")
}

// PrevID returns the id before id, or nil when id is the first question.
func (c *Client) PrevID(ctx context.Context, id int64) (*int64, error) {
	return c.neighbor(ctx, id, "prev")
}

func (c *Client) neighbor(ctx context.Context, id int64, dir string) (*int64, error) {
	var res idResponse
	err := c.do(ctx, c.timeout, http.MethodGet, fmt.Sprintf("/question/%d/%s", id, dir), nil, &res)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res.ID, nil
}

// Check asks the backend whether the current answers contain a mistake.
func (c *Client) Check(ctx context.Context, id int64, answers model.AnswerSet) (CheckResult, error) {
	var res CheckResult
	err := c.do(ctx, c.timeout, http.MethodPost, fmt.Sprintf("/question/%d/check", id), answersBody{Answers: answers}, &res)
	return res, err
}

// Hints generates the hint sequence for the current answers, least specific first.
func (c *Client) Hints(ctx context.Context, id int64, answers model.AnswerSet) ([]string, error) {
	var res hintsResponse
	if err := c.do(ctx, c.hintTimeout, http.MethodPost, fmt.Sprintf("/question/%d/hints", id), answersBody{Answers: answers}, &res); err != nil {
		return nil, err
	}
	if res.Hints == nil {
		return nil, errors.New("quizapi: hints missing from response")
	}
	return res.Hints, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
