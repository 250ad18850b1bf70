package guidance

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"prepmind/internal/ai"
	"prepmind/internal/metrics"
	"prepmind/internal/queue"
)

type Request struct {
	Query       string
	History     []ai.Message
	Attachments []ai.Attachment
	Preferred   string
	Temperature float64
	MaxTokens   int
	UserLabel   string
}

// Service is the caller-facing tutoring operation. Provider failures never
// escape it: when the whole chain is exhausted the local template generator
// answers instead.
type Service struct {
	dispatcher   *ai.Dispatcher
	fallback     *ai.FallbackGenerator
	queue        *queue.StreamQueue
	systemPrompt string
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

type Config struct {
	Dispatcher   *ai.Dispatcher
	Fallback     *ai.FallbackGenerator
	Queue        *queue.StreamQueue
	SystemPrompt string
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	fb := cfg.Fallback
	if fb == nil {
		fb = ai.NewFallbackGenerator()
	}
	return &Service{
		dispatcher:   cfg.Dispatcher,
		fallback:     fb,
		queue:        cfg.Queue,
		systemPrompt: cfg.SystemPrompt,
		logger:       cfg.Logger,
		metrics:      m,
	}
}

func (s *Service) GetGuidance(ctx context.Context, req Request) ai.Result {
	aiReq := ai.Request{
		SystemPrompt: s.systemPrompt,
		History:      req.History,
		Message:      req.Query,
		Attachments:  req.Attachments,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}

	res, err := s.dispatcher.Dispatch(ctx, aiReq, req.Preferred)
	outcome := "ok"
	if err != nil {
		res = s.fallback.Generate(aiReq)
		outcome = "fallback"
		s.metrics.FallbackServed.Inc()
		s.logger.Warn().
			Str("user", req.UserLabel).
			Err(err).
			Msg("serving local fallback guidance")
	}

	s.recordUsage(ctx, req, res, outcome)
	return res
}

func (s *Service) recordUsage(ctx context.Context, req Request, res ai.Result, outcome string) {
	if s.queue == nil {
		return
	}
	job := queue.UsageJob{
		UserLabel:     req.UserLabel,
		Provider:      res.Provider,
		Model:         res.Model,
		Preferred:     normalizePreferred(req.Preferred),
		Outcome:       outcome,
		ElapsedMillis: res.ElapsedMillis,
		Attachments:   len(req.Attachments),
	}
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		// usage logging is best effort, the student still gets their answer
		s.logger.Error().Err(err).Msg("failed to enqueue usage record")
		return
	}
	s.metrics.UsageEnqueued.Inc()
}

func normalizePreferred(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "auto" {
		return ""
	}
	return v
}
