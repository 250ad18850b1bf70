package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"prepmind/internal/metrics"
	"prepmind/internal/queue"
	"prepmind/internal/storage"
)

// Worker drains the usage stream and persists guidance records. Persistence
// is decoupled from the request path so a slow database never delays a
// student's answer.
type Worker struct {
	store         *storage.Store
	queue         *queue.StreamQueue
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Store         *storage.Store
	Queue         *queue.StreamQueue
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		store:         cfg.Store,
		queue:         cfg.Queue,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 8)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read usage stream")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			err := w.persist(ctx, msg.Job)
			if err == nil {
				w.metrics.UsageProcessed.Inc()
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
				}
				continue
			}

			w.metrics.UsageFailed.Inc()
			log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("usage record failed to persist")

			if msg.Job.Attempts < w.maxJobRetries {
				msg.Job.Attempts++
				if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
					log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue usage record")
					continue
				}
			} else {
				log.Warn().Str("job_id", msg.Job.JobID).Msg("dropping usage record after max retries")
			}
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack after retry handling")
			}
		}
	}
}

func (w *Worker) persist(ctx context.Context, job queue.UsageJob) error {
	return w.store.InsertGuidanceRecord(ctx, storage.GuidanceRecord{
		UserLabel:     job.UserLabel,
		Provider:      job.Provider,
		Model:         job.Model,
		Preferred:     job.Preferred,
		Outcome:       job.Outcome,
		ElapsedMillis: job.ElapsedMillis,
		Attachments:   job.Attachments,
	})
}
