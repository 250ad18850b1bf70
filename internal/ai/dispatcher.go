package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"prepmind/internal/metrics"
)

// Dispatcher tries providers strictly in priority order, one attempt each,
// and returns the first success. On total failure the error carries the
// last adapter's failure, wrapped in ErrAllExhausted.
type Dispatcher struct {
	descriptors []Descriptor
	prep        Preprocessor
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type DispatcherConfig struct {
	Descriptors  []Descriptor
	Preprocessor Preprocessor
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Dispatcher{
		descriptors: cfg.Descriptors,
		prep:        cfg.Preprocessor,
		logger:      cfg.Logger,
		metrics:     m,
	}
}

func (d *Dispatcher) Descriptors() []Descriptor {
	return d.descriptors
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request, preferred string) (Result, error) {
	order := d.order(preferred)
	if len(order) == 0 {
		return Result{}, fmt.Errorf("%w: no providers configured", ErrAllExhausted)
	}

	var lastErr error
	for _, desc := range order {
		shaped := d.shape(ctx, req, desc.Capabilities)

		d.logger.Debug().
			Str("event", "provider_attempt").
			Str("provider", desc.Name).
			Str("model", desc.Model).
			Msg("trying provider")
		d.metrics.ProviderAttempts.WithLabelValues(desc.Name).Inc()

		res, err := desc.Provider.Complete(ctx, shaped)
		if err == nil {
			d.logger.Info().
				Str("event", "provider_success").
				Str("provider", desc.Name).
				Str("model", res.Model).
				Int64("elapsed_ms", res.ElapsedMillis).
				Msg("provider succeeded")
			d.metrics.ProviderSuccesses.WithLabelValues(desc.Name).Inc()
			return res, nil
		}

		lastErr = err
		reason := FailureKindOf(err)
		d.logger.Warn().
			Str("event", "provider_failure").
			Str("provider", desc.Name).
			Str("reason", reason).
			Err(err).
			Msg("provider failed, moving on")
		d.metrics.ProviderFailures.WithLabelValues(desc.Name, reason).Inc()
	}

	d.logger.Error().
		Str("event", "all_exhausted").
		Int("providers", len(order)).
		Err(lastErr).
		Msg("every provider failed")
	return Result{}, fmt.Errorf("%w: %w", ErrAllExhausted, lastErr)
}

// order returns the attempt sequence. A preferred provider name moves that
// provider to the front; "auto" or empty keeps the configured ordering.
func (d *Dispatcher) order(preferred string) []Descriptor {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" || preferred == "auto" {
		return d.descriptors
	}

	out := make([]Descriptor, 0, len(d.descriptors))
	for _, desc := range d.descriptors {
		if strings.EqualFold(desc.Name, preferred) {
			out = append(out, desc)
			break
		}
	}
	for _, desc := range d.descriptors {
		if !strings.EqualFold(desc.Name, preferred) {
			out = append(out, desc)
		}
	}
	return out
}

// shape replaces raw attachments with adapter-appropriate fragments. With
// no preprocessor configured, attachments degrade to a single note naming
// them so the model still knows they were sent.
func (d *Dispatcher) shape(ctx context.Context, req Request, caps Capabilities) Request {
	if len(req.Attachments) == 0 {
		return req
	}

	shaped := req
	shaped.Attachments = nil

	if d.prep == nil {
		names := make([]string, 0, len(req.Attachments))
		for _, att := range req.Attachments {
			names = append(names, fmt.Sprintf("%s (%s)", att.Name, att.MimeType))
		}
		shaped.Fragments = []Fragment{{
			Kind: FragmentNote,
			Text: "[The student attached files that could not be forwarded: " + strings.Join(names, ", ") + "]",
		}}
		return shaped
	}

	frags := make([]Fragment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		frags = append(frags, d.prep.Process(ctx, att, caps))
	}
	shaped.Fragments = frags
	return shaped
}
