// Package orchestrator runs actions against a primary provider with an optional
// single-hop fallback to a secondary provider.
//
// Only an unreachable primary triggers the fallback. Cancellation and in-stream
// protocol errors are returned as they are. When the fallback starts, any text
// the primary streamed so far is void; the OnFallback hook lets callers reset
// what they display before the secondary's first update arrives.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/baykov477/obsidian-local-gpt/internal/metrics"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// FallbackHook is called once, right before the secondary attempt starts
type FallbackHook func(from, to types.ProviderConfig, cause error)

// Orchestrator runs actions with fallback
type Orchestrator struct {
	primary    provider.Client
	secondary  provider.Client
	onFallback FallbackHook
	metrics    *metrics.Metrics
	locks      *keyedMutex
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFallbackHook sets the hook invoked when the secondary takes over
func WithFallbackHook(fn FallbackHook) Option {
	return func(o *Orchestrator) {
		o.onFallback = fn
	}
}

// WithMetrics records runs and fallbacks
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator. secondary may be nil.
func New(primary, secondary provider.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		primary:   primary,
		secondary: secondary,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Primary returns the primary client
func (o *Orchestrator) Primary() provider.Client {
	return o.primary
}

// Secondary returns the fallback client, or nil
func (o *Orchestrator) Secondary() provider.Client {
	return o.secondary
}

// Run executes action over text. Concurrent runs of the same action name are
// serialized so their updates never interleave.
func (o *Orchestrator) Run(ctx context.Context, text string, action types.Action, onUpdate func(string)) (string, error) {
	unlock, err := o.locks.Lock(ctx, action.Name)
	if err != nil {
		return "", err
	}
	defer unlock()

	result, err := o.attempt(ctx, o.primary, text, action, onUpdate)
	if err == nil || o.secondary == nil || !errors.Is(err, types.ErrProviderUnreachable) {
		return result, err
	}
	if ctx.Err() != nil {
		return "", types.ErrCancelled
	}

	from, to := o.primary.Config(), o.secondary.Config()
	o.metrics.IncFallback(string(from.Kind), string(to.Kind))
	if o.onFallback != nil {
		o.onFallback(from, to, err)
	}

	return o.attempt(ctx, o.secondary, text, action, onUpdate)
}

func (o *Orchestrator) attempt(ctx context.Context, client provider.Client, text string, action types.Action, onUpdate func(string)) (string, error) {
	start := time.Now()
	result, err := client.Process(ctx, text, action, onUpdate)
	o.metrics.ObserveRun(string(client.Config().Kind), outcome(err), time.Since(start))
	return result, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, types.ErrCancelled):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeError
	}
}
