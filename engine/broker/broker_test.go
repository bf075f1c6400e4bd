package broker

import (
	"context"
	"testing"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/semantic"
)

type fakeStore struct {
	indexed map[string]bool
}

func newFakeStore(indexed ...string) *fakeStore {
	s := &fakeStore{indexed: make(map[string]bool)}
	for _, id := range indexed {
		s.indexed[id] = true
	}
	return s
}

func (s *fakeStore) HasAnyLocation(_ context.Context, sourceID string) (bool, error) {
	return s.indexed[sourceID], nil
}

func (s *fakeStore) FindByLocationIDs(_ context.Context, sourceIDs []string) ([]semantic.Record, error) {
	var out []semantic.Record
	for _, id := range sourceIDs {
		if s.indexed[id] {
			out = append(out, semantic.Record{Locations: []domain.Location{{ID: id}}})
		}
	}
	return out, nil
}

func TestStateMachineTransitions(t *testing.T) {
	b := New(newFakeStore())

	b.SetWaiting("id-1")
	if !b.SetIndexing("id-1") {
		t.Error("SetIndexing from waiting should succeed")
	}
	if b.SetAborted("id-1") {
		t.Error("SetAborted once indexing has begun must be refused")
	}
	b.SetCompleted("id-1")
	if b.IsAborted("id-1") {
		t.Error("completed id should not report aborted")
	}
}

func TestSetAborted_OnlyFromWaiting(t *testing.T) {
	b := New(newFakeStore())

	b.SetWaiting("id-1")
	if !b.SetAborted("id-1") {
		t.Fatal("SetAborted from waiting should succeed")
	}
	if !b.IsAborted("id-1") {
		t.Error("expected id-1 to report aborted")
	}
	if b.SetIndexing("id-1") {
		t.Error("SetIndexing after an abort already won the race must be refused")
	}
}

func TestStatus_InFlightTakesPriorityOverDerived(t *testing.T) {
	store := newFakeStore("id-1") // already indexed, per the store
	b := New(store)
	b.SetWaiting("id-1")

	status, err := b.Status(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != domain.StatusWaiting {
		t.Errorf("status = %q, want waiting (in-flight state wins over derived)", status)
	}
}

func TestStatus_DerivedFromStoreWhenNotInFlight(t *testing.T) {
	store := newFakeStore("id-1")
	b := New(store)

	status, err := b.Status(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != domain.StatusIndexed {
		t.Errorf("status = %q, want indexed", status)
	}

	status, err = b.Status(context.Background(), "id-unknown")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != domain.StatusNotFound {
		t.Errorf("status = %q, want not-found", status)
	}
}

func TestStatuses_BatchesDerivedLookupsInOneCall(t *testing.T) {
	store := newFakeStore("id-1", "id-2")
	b := New(store)
	b.SetWaiting("id-3")

	statuses, err := b.Statuses(context.Background(), []string{"id-1", "id-2", "id-3", "id-4"})
	if err != nil {
		t.Fatalf("Statuses: %v", err)
	}
	want := map[string]domain.Status{
		"id-1": domain.StatusIndexed,
		"id-2": domain.StatusIndexed,
		"id-3": domain.StatusWaiting,
		"id-4": domain.StatusNotFound,
	}
	for id, wantStatus := range want {
		if statuses[id] != wantStatus {
			t.Errorf("statuses[%q] = %q, want %q", id, statuses[id], wantStatus)
		}
	}
}

func TestStatusForDelete(t *testing.T) {
	store := newFakeStore("id-indexed")
	b := New(store)
	b.SetWaiting("id-waiting")

	toDeindex, err := b.StatusForDelete(context.Background(), []string{"id-indexed", "id-waiting", "id-unknown"})
	if err != nil {
		t.Fatalf("StatusForDelete: %v", err)
	}
	if len(toDeindex) != 1 || toDeindex[0] != "id-indexed" {
		t.Errorf("toDeindex = %v, want [id-indexed]", toDeindex)
	}
	if !b.IsAborted("id-waiting") {
		t.Error("a waiting id passed to StatusForDelete should be moved to aborted")
	}
}

func TestLockStoreSerializes(t *testing.T) {
	b := New(newFakeStore())
	b.LockStore()
	done := make(chan struct{})
	go func() {
		b.LockStore()
		close(done)
		b.UnlockStore()
	}()
	select {
	case <-done:
		t.Fatal("second LockStore acquired the mutex while the first holder still held it")
	default:
	}
	b.UnlockStore()
	<-done
}
