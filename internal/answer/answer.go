// Package answer turns a question into a grounded answer: it retrieves
// context from the vector index, builds the prompt and makes a single
// chat-model call. Every failure is rendered into the answer text so callers
// always have something to show.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfqa/internal/budget"
	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/rag"
	"github.com/54b3r/pdfqa/internal/store"
)

// Outcome classifies how a question was handled.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// NothingFoundMessage is returned when retrieval yields no context.
const NothingFoundMessage = "I couldn't find anything in the docs for that query."

// Defaults for Config fields left at zero.
const (
	DefaultTemperature = float32(0.1)
	DefaultTimeout     = 2 * time.Minute
)

// Retriever is the slice of rag.Retriever the service needs.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string, k int) (string, []rag.Result, error)
}

// Source is a cited passage.
type Source struct {
	Source   string  `json:"source"`
	Page     int     `json:"page"`
	Distance float32 `json:"distance"`
}

// String renders the citation as "file p.N".
func (s Source) String() string {
	page := "?"
	if s.Page > 0 {
		page = strconv.Itoa(s.Page)
	}
	src := s.Source
	if src == "" {
		src = "unknown"
	}
	return src + " p." + page
}

// Result is the outcome of one question.
type Result struct {
	// Text is always set: the answer, a guidance message or "Error: ...".
	Text string
	// Sources lists the passages given to the model, nearest first.
	Sources []Source
	// Outcome classifies the result.
	Outcome Outcome
	// Err carries the failure behind OutcomeError.
	Err error
}

// Config holds the dependencies of a Service.
type Config struct {
	// ChatModel generates the answer.
	ChatModel model.BaseChatModel

	// Retriever supplies context for the question.
	Retriever Retriever

	// Prompt carries the persona used in the system message.
	Prompt rag.Prompt

	// TopK is the number of passages retrieved (default 5).
	TopK int

	// Temperature is sent with every generation call. Nil uses
	// DefaultTemperature. Set DisableTemperature for models that reject it.
	Temperature        *float32
	DisableTemperature bool

	// Timeout bounds the generation call (default 2m).
	Timeout time.Duration

	// ContextTokens, when positive, drops the farthest passages until the
	// estimated prompt fits.
	ContextTokens int

	// History, if set, receives every answered question. Failures to
	// record are logged and otherwise ignored.
	History store.HistoryStore
}

// Service answers questions against an index.
type Service struct {
	chat      model.BaseChatModel
	retriever Retriever
	prompt    rag.Prompt
	topK      int
	opts      []model.Option
	timeout   time.Duration
	maxTokens int
	history   store.HistoryStore
}

// New constructs a Service from cfg.
func New(cfg *Config) (*Service, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var opts []model.Option
	if !cfg.DisableTemperature {
		temp := DefaultTemperature
		if cfg.Temperature != nil {
			temp = *cfg.Temperature
		}
		opts = append(opts, model.WithTemperature(temp))
	}

	return &Service{
		chat:      cfg.ChatModel,
		retriever: cfg.Retriever,
		prompt:    cfg.Prompt,
		topK:      topK,
		opts:      opts,
		timeout:   timeout,
		maxTokens: cfg.ContextTokens,
		history:   cfg.History,
	}, nil
}

// GuidanceMessage is returned for blank questions.
func (s *Service) GuidanceMessage() string {
	return s.prompt.Guidance()
}

// Answer answers question using the configured top-k.
func (s *Service) Answer(ctx context.Context, question string) Result {
	return s.AnswerK(ctx, question, 0)
}

// AnswerK answers question using k passages (k <= 0 uses the default). It
// never panics and never returns a bare error: failures are reported as
// OutcomeError with Text "Error: <reason>".
func (s *Service) AnswerK(ctx context.Context, question string, k int) (res Result) {
	log := logging.FromContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("answer: panic: %v", r)
			res = Result{Text: "Error: " + err.Error(), Outcome: OutcomeError, Err: err}
		}
		log.Info("answer: question handled",
			slog.String("outcome", string(res.Outcome)),
			slog.Int("sources", len(res.Sources)),
			slog.Duration("duration", time.Since(start)),
		)
		if res.Outcome != OutcomeInvalid {
			s.record(ctx, question, res, time.Since(start))
		}
	}()

	if strings.TrimSpace(question) == "" {
		return Result{Text: s.GuidanceMessage(), Outcome: OutcomeInvalid}
	}
	if k <= 0 {
		k = s.topK
	}

	passages, results, err := s.retriever.RetrieveContext(ctx, question, k)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			return Result{Text: s.GuidanceMessage(), Outcome: OutcomeInvalid}
		}
		return failed(err)
	}
	if passages == "" {
		return Result{Text: NothingFoundMessage, Outcome: OutcomeNotFound}
	}

	if s.maxTokens > 0 {
		fixed := budget.EstimateMessages(s.prompt.Build(question, ""))
		if kept := budget.Fit(results, fixed, s.maxTokens); len(kept) < len(results) {
			log.Warn("answer: context over budget, dropping farthest passages",
				slog.Int("retrieved", len(results)),
				slog.Int("kept", len(kept)),
				slog.Int("max_tokens", s.maxTokens),
			)
			results = kept
			passages = rag.FormatContext(kept)
		}
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{Source: r.Metadata.Source, Page: r.Metadata.Page, Distance: r.Distance}
	}

	text, err := s.generate(ctx, s.prompt.Build(question, passages))
	if err != nil {
		res := failed(err)
		res.Sources = sources
		return res
	}
	return Result{Text: text, Sources: sources, Outcome: OutcomeOK}
}

// generate performs the single chat-model call under the configured timeout.
func (s *Service) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "pdfqa.answer",
		Type:      "RAG",
		Component: components.ComponentOfChatModel,
	})

	out, err := s.chat.Generate(ctx, msgs, s.opts...)
	if err != nil {
		return "", fmt.Errorf("answer: generation failed: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("answer: model returned no message")
	}
	return strings.TrimSpace(out.Content), nil
}

func (s *Service) record(ctx context.Context, question string, res Result, d time.Duration) {
	if s.history == nil {
		return
	}
	cited := make([]string, len(res.Sources))
	for i, src := range res.Sources {
		cited[i] = src.String()
	}
	err := s.history.Append(context.WithoutCancel(ctx), store.Entry{
		Question: question,
		Answer:   res.Text,
		Outcome:  string(res.Outcome),
		Sources:  cited,
		Duration: d,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to record answer", slog.Any("error", err))
	}
}

func failed(err error) Result {
	return Result{Text: "Error: " + err.Error(), Outcome: OutcomeError, Err: err}
}
