// Package embed wraps the external embedding model collaborator (§4.6): a
// black box that turns text into unit-norm 1024-dimensional vectors.
package embed

import (
	"context"
	"log/slog"
	"math"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/pkg/resilience"
)

// DefaultBatchSize is the number of passages embedded per backend call.
const DefaultBatchSize = 32

// Backend is the narrow interface the external embedding model must
// satisfy. A single call may embed one or many texts; order is preserved.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Adapter batches calls to a Backend, rate-limits and circuit-breaks
// outbound traffic to it, and normalises every returned vector to unit
// length so cosine similarity reduces to inner product downstream.
type Adapter struct {
	backend   Backend
	batchSize int
	limiter   *resilience.Limiter
	breaker   *resilience.Breaker
	logger    *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithRateLimit throttles outbound batch submission to r requests/sec with
// the given burst, grounded on the rate limiting the teacher's YouTube
// scraper applies to its own outbound collaborator calls.
func WithRateLimit(r float64, burst int) Option {
	return func(a *Adapter) {
		a.limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: r, Burst: burst})
	}
}

// WithBreaker trips outbound calls through a circuit breaker so sustained
// collaborator failure fails fast instead of queuing retries.
func WithBreaker(opts resilience.BreakerOpts) Option {
	return func(a *Adapter) { a.breaker = resilience.NewBreaker(opts) }
}

// New constructs an Adapter. Warming (the one Ollama/model round-trip at
// process start, per §4.6) is the caller's responsibility — see Warm.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{backend: backend, batchSize: DefaultBatchSize, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Warm issues one throwaway embedding call so the first real batch doesn't
// pay a cold-start cost inside an ingestion call.
func (a *Adapter) Warm(ctx context.Context) error {
	_, err := a.call(ctx, []string{"warmup"})
	return err
}

// EmbedPassages embeds every passage's content in batches of batchSize and
// returns copies with Embedding set to a unit-norm vector. Any batch
// failure aborts the whole call and surfaces as an EmbedError (§4.6, §7).
func (a *Adapter) EmbedPassages(ctx context.Context, passages []domain.Passage) ([]domain.Passage, error) {
	out := make([]domain.Passage, len(passages))
	copy(out, passages)

	for start := 0; start < len(out); start += a.batchSize {
		end := min(start+a.batchSize, len(out))
		batch := out[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}

		vectors, err := a.call(ctx, texts)
		if err != nil {
			return nil, domain.NewEmbedError(len(texts), err)
		}
		for i := range batch {
			batch[i].Embedding = normalize(vectors[i])
		}
		if a.logger != nil {
			a.logger.Info("embedded batch", "size", len(texts))
		}
	}
	return out, nil
}

func (a *Adapter) call(ctx context.Context, texts []string) ([][]float32, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var vectors [][]float32
	run := func(ctx context.Context) error {
		v, err := a.backend.Embed(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	}

	if a.breaker != nil {
		if err := a.breaker.Call(ctx, run); err != nil {
			return nil, err
		}
		return vectors, nil
	}
	if err := run(ctx); err != nil {
		return nil, err
	}
	return vectors, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

