// Package broker implements the source-status broker (§4.11): a
// process-wide coordinator tracking in-flight upload jobs as a small
// tagged-union state machine, and owning the store-write mutex that
// serialises every ingestion and deindex call against the vector store.
package broker

import (
	"context"
	"sync"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/semantic"
)

// Store is the narrow slice of the vector store contract the broker needs
// for derived status lookups. *semantic.VectorStore satisfies it; tests
// provide a fake.
type Store interface {
	HasAnyLocation(ctx context.Context, sourceID string) (bool, error)
	FindByLocationIDs(ctx context.Context, sourceIDs []string) ([]semantic.Record, error)
}

// Broker tracks in-flight source status and serialises store writes. It is
// constructed once at startup and shared; all methods are safe for
// concurrent use.
type Broker struct {
	mu       sync.Mutex
	inFlight map[string]domain.Status

	storeMu sync.Mutex
	store   Store
}

// New constructs a Broker backed by store for derived status lookups.
func New(store Store) *Broker {
	return &Broker{
		inFlight: make(map[string]domain.Status),
		store:    store,
	}
}

// SetWaiting registers id as waiting. Called when an upload is accepted,
// before the background job is dispatched.
func (b *Broker) SetWaiting(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight[id] = domain.StatusWaiting
}

// SetIndexing transitions id from waiting to indexing. No-op (returns
// false) unless the current state is waiting — this prevents a late
// transition after an abort already won the race (§4.11 policies).
func (b *Broker) SetIndexing(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight[id] != domain.StatusWaiting {
		return false
	}
	b.inFlight[id] = domain.StatusIndexing
	return true
}

// SetAborted transitions id from waiting to aborted. No-op (returns false)
// unless the current state is waiting — once indexing has begun, its
// compute is already committed and abort is refused.
func (b *Broker) SetAborted(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight[id] != domain.StatusWaiting {
		return false
	}
	b.inFlight[id] = domain.StatusAborted
	return true
}

// SetCompleted removes id from the in-flight map unconditionally.
func (b *Broker) SetCompleted(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, id)
}

// IsAborted reports whether id is currently aborted. The background
// worker calls this immediately after acquiring the store-write mutex, to
// decide whether to run the ingestion pipeline at all (§5 cancellation).
func (b *Broker) IsAborted(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[id] == domain.StatusAborted
}

// LockStore acquires the store-write mutex for the duration of one
// ingestion or deindex call.
func (b *Broker) LockStore() { b.storeMu.Lock() }

// UnlockStore releases the store-write mutex.
func (b *Broker) UnlockStore() { b.storeMu.Unlock() }

// Status reports id's status: the in-flight state if one is tracked,
// otherwise a derived state obtained by consulting the store (§4.11).
func (b *Broker) Status(ctx context.Context, id string) (domain.Status, error) {
	if s, ok := b.inFlightStatus(id); ok {
		return s, nil
	}
	found, err := b.store.HasAnyLocation(ctx, id)
	if err != nil {
		return "", domain.NewStoreError("status", err)
	}
	if found {
		return domain.StatusIndexed, nil
	}
	return domain.StatusNotFound, nil
}

func (b *Broker) inFlightStatus(id string) (domain.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.inFlight[id]
	return s, ok
}

// Statuses answers the derived portion of a batch of ids in one store
// round-trip (get_statuses, §4.11).
func (b *Broker) Statuses(ctx context.Context, ids []string) (map[string]domain.Status, error) {
	out := make(map[string]domain.Status, len(ids))
	var needsLookup []string
	for _, id := range ids {
		if s, ok := b.inFlightStatus(id); ok {
			out[id] = s
		} else {
			needsLookup = append(needsLookup, id)
		}
	}
	if len(needsLookup) == 0 {
		return out, nil
	}

	records, err := b.store.FindByLocationIDs(ctx, needsLookup)
	if err != nil {
		return nil, domain.NewStoreError("statuses", err)
	}
	indexed := make(map[string]bool, len(needsLookup))
	for _, rec := range records {
		for _, loc := range rec.Locations {
			indexed[loc.ID] = true
		}
	}
	for _, id := range needsLookup {
		if indexed[id] {
			out[id] = domain.StatusIndexed
		} else {
			out[id] = domain.StatusNotFound
		}
	}
	return out, nil
}

// StatusForDelete implements the status-for-delete algorithm (§4.11): ids
// currently waiting are moved to aborted and excluded from the delete;
// ids that are indexed are returned for the caller to deindex; ids that
// are indexing, already aborted, or not-found are ignored.
func (b *Broker) StatusForDelete(ctx context.Context, ids []string) ([]string, error) {
	statuses, err := b.Statuses(ctx, ids)
	if err != nil {
		return nil, err
	}

	var toDeindex []string
	for _, id := range ids {
		switch statuses[id] {
		case domain.StatusWaiting:
			b.SetAborted(id)
		case domain.StatusIndexed:
			toDeindex = append(toDeindex, id)
		}
	}
	return toDeindex, nil
}
