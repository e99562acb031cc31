// Command quiz is a terminal front end for the UMTP questions: it shows a
// question, takes answers and drives the same hint panel the gateway serves.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/logger"
	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/quizapi"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/storage"
	"github.com/umtp/assist-gateway/internal/worker"
	"github.com/umtp/assist-gateway/internal/workflow"
)

// The terminal is one device with one session for the life of the process.
var local = service.Client{DeviceID: "terminal", SessionID: "terminal"}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Diagnostics go to stderr so they never interleave with the screen.
	log := logger.SetupWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Device & Session Storage ──────────────────────────────────────
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	stores := service.Stores{
		Durable: storage.NewFile(filepath.Join(dir, "umtp-quiz", "device.json")),
		Session: storage.NewMemory(0),
	}

	// ─── Backend Client & Event Log ────────────────────────────────────
	httpClient := quizapi.NewHTTPClient()
	backend := quizapi.New(cfg.BackendURL, httpClient)
	logWorker := worker.NewLogWorker(
		eventlog.NewLogger(cfg.BackendURL, httpClient, cfg.LogTimeout, log),
		cfg.LogQueueSize, 1, log,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		logWorker.Start(workerCtx)
	}()
	defer func() {
		workerCancel()
		workers.Wait()
	}()

	questions := service.NewQuestionService(backend, storage.NewMemory(cfg.QuestionCacheTTL), log)
	hints := service.NewHintService(questions, backend, logWorker, stores, service.HintOptions{
		Precheck: cfg.HintPrecheck,
	}, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== UMTP 穴埋め問題 ===")

	caller := promptToken(log)
	if caller.StudentID != "" {
		fmt.Printf("学籍番号: %s\n", caller.StudentID)
	}

	if err := listQuestions(ctx, questions); err != nil {
		fmt.Println("問題一覧を取得できませんでした:", err)
	}

	id := promptInt(reader, "問題IDを入力: ")
	if id <= 0 {
		return
	}

	s := &screen{hints: hints, caller: caller, reader: reader}
	if err := s.open(ctx, int64(id)); err != nil {
		fmt.Println("問題を開けませんでした:", err)
		return
	}
	s.loop(ctx)
}

// promptToken reads an optional ID token without echo. Empty input stays anonymous.
func promptToken(log zerolog.Logger) workflow.Caller {
	fmt.Print("IDトークン (Enterでスキップ): ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Debug().Err(err).Msg("Token prompt unavailable")
		return workflow.Caller{}
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return workflow.Caller{}
	}
	studentID, err := eventlog.StudentIDFromToken(token)
	if err != nil {
		fmt.Println("トークンから学籍番号を読み取れませんでした。")
	}
	return workflow.Caller{StudentID: studentID, Token: eventlog.StaticToken(token)}
}

func listQuestions(ctx context.Context, questions *service.QuestionService) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	list, err := questions.List(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		fmt.Printf("  [%d] %s\n", list[i].ID, list[i].Summary(40))
	}
	return nil
}

func promptInt(reader *bufio.Reader, label string) int {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0
	}
	return n
}

// screen is the question page of the terminal client.
type screen struct {
	hints  *service.HintService
	caller workflow.Caller
	reader *bufio.Reader

	page *service.QuestionPage
	wf   *workflow.Workflow
}

func (s *screen) open(ctx context.Context, id int64) error {
	opened, err := s.hints.Open(ctx, local, id)
	if err != nil {
		return err
	}
	wf, err := s.hints.Workflow(ctx, local, id)
	if err != nil {
		return err
	}
	s.page, s.wf = opened.Page, wf
	s.renderQuestion()
	s.renderPanel(opened.Snapshot)
	return nil
}

const help = `コマンド:
  a <空欄> <記号>    回答を選ぶ (例: a a B)   a <空欄> で取り消し
  h                  ヒントを要求
  t <番号>           ヒントを開く/閉じる
  r <番号> <1-5> [理由]  ヒントを評価
  s                  回答を提出
  x                  ヒントをリセット
  n / p              次の問題 / 前の問題
  q                  終了`

func (s *screen) loop(ctx context.Context) {
	fmt.Println(help)
	for {
		fmt.Print("> ")
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var snap workflow.Snapshot
		switch fields[0] {
		case "q":
			return
		case "a":
			if len(fields) < 2 {
				fmt.Println(help)
				continue
			}
			value := ""
			if len(fields) > 2 {
				value = fields[2]
			}
			snap, err = s.wf.SetAnswer(ctx, s.caller, fields[1], value)
		case "h":
			fmt.Println("ヒント生成中...")
			snap, err = s.wf.Request(ctx, s.caller)
		case "t":
			snap, err = s.wf.Toggle(ctx, s.caller, levelArg(fields))
		case "r":
			score := 0
			if len(fields) > 2 {
				score, _ = strconv.Atoi(fields[2])
			}
			reason := ""
			if len(fields) > 3 {
				reason = strings.Join(fields[3:], " ")
			}
			snap, err = s.wf.Rate(ctx, s.caller, levelArg(fields), score, reason)
		case "s":
			snap, err = s.wf.Submit(ctx, s.caller)
			fmt.Println("提出しました。")
		case "x":
			snap = s.wf.Reset(ctx)
		case "n", "p":
			next := s.page.Neighbors.NextID
			if fields[0] == "p" {
				next = s.page.Neighbors.PrevID
			}
			if next == nil {
				fmt.Println("これ以上問題はありません。")
				continue
			}
			if err := s.open(ctx, *next); err != nil {
				fmt.Println("問題を開けませんでした:", err)
			}
			continue
		default:
			fmt.Println(help)
			continue
		}

		if err != nil {
			fmt.Println("!", describe(err))
		}
		s.renderPanel(snap)
	}
}

// levelArg converts the 1-based number typed by the student to a level.
func levelArg(fields []string) int {
	if len(fields) < 2 {
		return -1
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return -1
	}
	return n - 1
}

func describe(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownBlank):
		return "その空欄はありません。"
	case errors.Is(err, model.ErrUnknownChoice):
		return "その記号は選択肢にありません。"
	case errors.Is(err, workflow.ErrInvalidLevel):
		return "そのヒントは表示されていません。"
	case errors.Is(err, workflow.ErrInvalidRating):
		return "評価は1から5で入力してください。"
	case errors.Is(err, workflow.ErrRequestInFlight):
		return "ヒントを生成中です。"
	default:
		return err.Error()
	}
}

func (s *screen) renderQuestion() {
	q := s.page.Question
	fmt.Printf("\n── 問題 %d ──\n%s\n\n%s\n", q.ID, q.ProblemDescription, q.Question)
	if q.Image != "" {
		fmt.Println("図:", q.Image)
	}
	fmt.Println("選択肢:")
	for _, c := range q.Choices {
		fmt.Printf("  %s: %s\n", c.Label, c.Text)
	}
}

func (s *screen) renderPanel(snap workflow.Snapshot) {
	answers := make([]string, 0, len(snap.Answers))
	for _, label := range snap.Answers.Labels() {
		v := snap.Answers[label]
		if v == "" {
			v = "-"
		}
		answers = append(answers, label+"="+v)
	}
	fmt.Println("回答:", strings.Join(answers, " "))

	if snap.Placeholder != "" {
		fmt.Println(snap.Placeholder)
		return
	}
	for _, h := range snap.Hints {
		mark := " "
		if h.Seen {
			mark = "*"
		}
		if h.Open {
			fmt.Printf(" %s[%d %s] %s\n", mark, h.Number, h.Badge, h.Text)
		} else {
			fmt.Printf(" %s[%d %s] ...\n", mark, h.Number, h.Badge)
		}
	}
}
