package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/pkg/resilience"
)

type fakeBackend struct {
	calls   [][]string
	vectors [][]float32
	err     error
}

func (f *fakeBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{3, 4} // norm 5, trivial to check normalization
	}
	return out, nil
}

func TestEmbedPassages_NormalizesVectors(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, nil)

	out, err := a.EmbedPassages(context.Background(), []domain.Passage{{Content: "brake pads"}})
	if err != nil {
		t.Fatalf("EmbedPassages: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	v := out[0].Embedding
	got := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	if math.Abs(got-1) > 1e-6 {
		t.Errorf("||embedding|| = %v, want 1", got)
	}
}

func TestEmbedPassages_BatchesByBatchSize(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, nil, WithBatchSize(2))

	passages := make([]domain.Passage, 5)
	for i := range passages {
		passages[i] = domain.Passage{Content: "x"}
	}
	if _, err := a.EmbedPassages(context.Background(), passages); err != nil {
		t.Fatalf("EmbedPassages: %v", err)
	}
	if len(backend.calls) != 3 {
		t.Fatalf("len(backend.calls) = %d, want 3 (batches of 2,2,1)", len(backend.calls))
	}
	if len(backend.calls[0]) != 2 || len(backend.calls[2]) != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", []int{len(backend.calls[0]), len(backend.calls[1]), len(backend.calls[2])})
	}
}

func TestEmbedPassages_BackendFailureWrapsAsEmbedError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("model unavailable")}
	a := New(backend, nil)

	_, err := a.EmbedPassages(context.Background(), []domain.Passage{{Content: "x"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, domain.ErrEmbed) {
		t.Errorf("error does not wrap ErrEmbed: %v", err)
	}
}

func TestEmbedPassages_DoesNotMutateInputSlice(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, nil)

	in := []domain.Passage{{Content: "x"}}
	out, err := a.EmbedPassages(context.Background(), in)
	if err != nil {
		t.Fatalf("EmbedPassages: %v", err)
	}
	if in[0].Embedding != nil {
		t.Error("input passage was mutated in place")
	}
	if out[0].Embedding == nil {
		t.Error("output passage was not embedded")
	}
}

func TestEmbedPassages_RespectsRateLimit(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, nil, WithRateLimit(1, 1))

	if _, err := a.EmbedPassages(context.Background(), []domain.Passage{{Content: "x"}}); err != nil {
		t.Fatalf("EmbedPassages with one available token: %v", err)
	}
}

func TestEmbedPassages_BreakerTripsOnRepeatedFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("down")}
	a := New(backend, nil, WithBreaker(resilience.BreakerOpts{FailThreshold: 1}))

	_, err := a.EmbedPassages(context.Background(), []domain.Passage{{Content: "x"}})
	if err == nil {
		t.Fatal("expected the first call to surface the backend error")
	}

	_, err2 := a.EmbedPassages(context.Background(), []domain.Passage{{Content: "y"}})
	if err2 == nil {
		t.Fatal("expected the breaker to reject the second call once open")
	}
}

func TestWarm(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, nil)
	if err := a.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("len(backend.calls) = %d, want 1", len(backend.calls))
	}
}
