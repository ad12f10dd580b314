// Package chat implements HealthMate, the health-advice chatbot.  Small
// talk is answered from a fixed table; everything else goes through
// retrieval over the knowledge base and a language model.  The Gateway
// holds no conversation state: callers own the history and pass it in.
package chat

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/metrics"
)

var (
	// ErrRetrieval wraps failures of the knowledge-base lookup.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrModel wraps failures of the language model.
	ErrModel = errors.New("language model failed")
)

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Passage is a piece of the knowledge base returned by a Retriever.
type Passage struct {
	Source string
	Text   string
	Score  float64
}

// Retriever finds the passages most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// Model completes a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AnswerCache stores answers to first-turn questions.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, answer string)
}

// Gateway answers chat messages.
type Gateway struct {
	retriever Retriever
	model     Model
	cache     AnswerCache
	topK      int
	pick      func(n int) int
	log       *zap.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(g *Gateway) {
		if k > 0 {
			g.topK = k
		}
	}
}

// WithAnswerCache enables caching of first-turn answers.
func WithAnswerCache(c AnswerCache) Option { return func(g *Gateway) { g.cache = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(g *Gateway) { g.log = l.Named("chat") } }

// withPicker makes small-talk choice deterministic in tests.
func withPicker(pick func(n int) int) Option { return func(g *Gateway) { g.pick = pick } }

// NewGateway builds a Gateway over a retriever and a model.
func NewGateway(r Retriever, m Model, opts ...Option) *Gateway {
	g := &Gateway{retriever: r, model: m, topK: 4, log: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Respond answers message given the prior turns of the conversation.
// Small-talk phrases get a canned reply without touching retrieval.
func (g *Gateway) Respond(ctx context.Context, message string, history []Turn) (string, error) {
	if reply, ok := smallTalkReply(message, g.pick); ok {
		metrics.ChatRequests.WithLabelValues("smalltalk").Inc()
		return reply, nil
	}
	question := strings.TrimSpace(message)
	if question == "" {
		return "", fmt.Errorf("%w: message is empty", apperr.ErrValidation)
	}

	start := time.Now()
	answer, err := g.answer(ctx, question, history)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		g.log.Warn("chat answer failed", zap.Error(err))
		return "", err
	}
	metrics.ChatRequests.WithLabelValues("retrieval").Inc()
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	return answer, nil
}

func (g *Gateway) answer(ctx context.Context, question string, history []Turn) (string, error) {
	var key string
	if len(history) == 0 && g.cache != nil {
		key = cacheKey(question)
		if cached, ok := g.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	standalone := question
	if len(history) > 0 {
		condensed, err := g.model.Generate(ctx, standalonePrompt(history, question))
		if err != nil {
			return "", fmt.Errorf("%w: condense question: %w", ErrModel, err)
		}
		if c := strings.TrimSpace(condensed); c != "" {
			standalone = c
		}
	}

	passages, err := g.retriever.Retrieve(ctx, standalone, g.topK)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	out, err := g.model.Generate(ctx, answerPrompt(passages, standalone))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModel, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty answer", ErrModel)
	}

	if key != "" {
		g.cache.Set(ctx, key, out)
	}
	return out, nil
}

func cacheKey(question string) string {
	sum := sha1.Sum([]byte(strings.Join(strings.Fields(normalize(question)), " ")))
	return hex.EncodeToString(sum[:])
}
