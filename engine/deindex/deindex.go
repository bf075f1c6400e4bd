// Package deindex implements the deindex pipeline (§4.9): retrieve every
// passage referencing any of a set of source ids, strip those references,
// and write the passages back — deleting any that end up with no
// locations at all (§9 open question (i)).
package deindex

import (
	"context"
	"log/slog"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/semantic"
)

// Store is the narrow slice of the vector store contract the deindex
// pipeline needs. *semantic.VectorStore satisfies it; tests provide a fake.
type Store interface {
	FindByLocationIDs(ctx context.Context, sourceIDs []string) ([]semantic.Record, error)
	Upsert(ctx context.Context, records []semantic.Record, policy semantic.WritePolicy) error
	Delete(ctx context.Context, ids []string) error
}

// Deps are the collaborators the deindex pipeline is built from.
type Deps struct {
	Store  Store
	Logger *slog.Logger
}

// Deindex removes sourceIDs from every passage that references them.
// Idempotent: running it again on ids already removed is a no-op (§7).
func (d Deps) Deindex(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}

	records, err := d.Store.FindByLocationIDs(ctx, sourceIDs)
	if err != nil {
		return domain.NewStoreError("deindex filter-retrieve", err)
	}
	if len(records) == 0 {
		return nil
	}

	exclude := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		exclude[id] = true
	}

	var toUpsert []semantic.Record
	var toDelete []string
	for _, rec := range records {
		updated := rec.ToPassage().WithoutSources(exclude)
		if len(updated.Locations) == 0 {
			toDelete = append(toDelete, updated.ID)
			continue
		}
		toUpsert = append(toUpsert, semantic.FromPassage(updated))
	}

	if len(toUpsert) > 0 {
		if err := d.Store.Upsert(ctx, toUpsert, semantic.Overwrite); err != nil {
			return err
		}
	}
	if len(toDelete) > 0 {
		if err := d.Store.Delete(ctx, toDelete); err != nil {
			return err
		}
	}

	if d.Logger != nil {
		d.Logger.Info("deindex complete", "source_ids", len(sourceIDs), "updated", len(toUpsert), "deleted", len(toDelete))
	}
	return nil
}
