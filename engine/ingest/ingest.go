// Package ingest implements the ingestion pipeline (§4.8): parse, clean,
// split, assign content ids, merge, duplicate-check, then fan out to the
// hits branch (merge with the store's existing locations, overwrite) and
// the misses branch (embed, write under the FAIL policy) concurrently.
package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hutschen/doc-audit-api/engine/docx"
	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/embed"
	"github.com/hutschen/doc-audit-api/engine/passage"
	"github.com/hutschen/doc-audit-api/engine/semantic"
	"github.com/hutschen/doc-audit-api/pkg/fn"
)

// DefaultDuplicateCheckBatchSize is the batch_size for the duplicate
// checker's id-in-set queries (§4.5).
const DefaultDuplicateCheckBatchSize = 32

// Store is the narrow slice of the vector store contract the ingestion
// pipeline needs. *semantic.VectorStore satisfies it; tests provide a fake.
type Store interface {
	FindByIDs(ctx context.Context, ids []string) ([]semantic.Record, error)
	Upsert(ctx context.Context, records []semantic.Record, policy semantic.WritePolicy) error
}

// Deps are the collaborators the ingestion pipeline is built from.
type Deps struct {
	Store        Store
	Embedder     *embed.Adapter
	Logger       *slog.Logger
	WindowSize   int
	DupBatchSize int
}

func (d Deps) windowSize() int {
	if d.WindowSize > 0 {
		return d.WindowSize
	}
	return passage.WindowSize
}

func (d Deps) dupBatchSize() int {
	if d.DupBatchSize > 0 {
		return d.DupBatchSize
	}
	return DefaultDuplicateCheckBatchSize
}

// ResolveSourceIDs implements the positional pairing rule (§4.8): pad a
// short or nil sourceIDs with freshly generated UUIDs, truncate a long one.
func ResolveSourceIDs(sourcePaths []string, sourceIDs []string) []string {
	out := make([]string, len(sourcePaths))
	copy(out, sourceIDs)
	for i := len(sourceIDs); i < len(sourcePaths); i++ {
		out[i] = uuid.New().String()
	}
	return out[:len(sourcePaths)]
}

// Index runs the ingestion pipeline for the given (sourcePaths, sourceIDs)
// pairs. A source that fails to parse is logged and skipped; the call
// continues with the remaining sources (§4.1, §7). The call fails if the
// duplicate check, the overwrite on the hits branch, or the embed or write
// step on the misses branch fails (§7 propagation).
func (d Deps) Index(ctx context.Context, sourcePaths []string, sourceIDs []string) error {
	ids := ResolveSourceIDs(sourcePaths, sourceIDs)

	var raw []domain.Passage
	for i, path := range sourcePaths {
		sections, err := docx.Parse(path)
		if err != nil {
			if d.Logger != nil {
				d.Logger.Warn("skipping unparsable source", "source_id", ids[i], "error", err)
			}
			continue
		}
		for _, section := range sections {
			raw = append(raw, passage.FromSection(section, ids[i], d.windowSize())...)
		}
	}

	merged := passage.MergeByContentID(raw)
	hits, misses, retrieved, err := d.checkDuplicates(ctx, merged)
	if err != nil {
		return err
	}

	results := fn.FanOutResult(
		func() fn.Result[struct{}] { return fn.FromPair(struct{}{}, d.overwriteHits(ctx, retrieved, hits)) },
		func() fn.Result[struct{}] { return fn.FromPair(struct{}{}, d.writeMisses(ctx, misses)) },
	)
	if _, err := results.Unwrap(); err != nil {
		return err
	}

	if d.Logger != nil {
		d.Logger.Info("ingest complete", "sources", len(sourcePaths), "passages", len(merged), "hits", len(hits), "misses", len(misses))
	}
	return nil
}

// checkDuplicates implements §4.5: batched id-in-set lookups against the
// store, partitioning merged into hits/misses and returning the
// authoritative retrieved records for the hits.
func (d Deps) checkDuplicates(ctx context.Context, merged []domain.Passage) (hits, misses, retrieved []domain.Passage, err error) {
	batchSize := d.dupBatchSize()
	existing := make(map[string]semantic.Record)

	for start := 0; start < len(merged); start += batchSize {
		end := min(start+batchSize, len(merged))
		ids := make([]string, 0, end-start)
		for _, p := range merged[start:end] {
			ids = append(ids, p.ID)
		}
		recs, err := d.Store.FindByIDs(ctx, ids)
		if err != nil {
			return nil, nil, nil, domain.NewStoreError("duplicate check", err)
		}
		for _, r := range recs {
			existing[r.ID] = r
		}
	}

	for _, p := range merged {
		if rec, ok := existing[p.ID]; ok {
			hits = append(hits, p)
			retrieved = append(retrieved, rec.ToPassage())
		} else {
			misses = append(misses, p)
		}
	}
	return hits, misses, retrieved, nil
}

// overwriteHits is the retrieved+hits tail: merge the newly contributed
// locations into the store's authoritative existing record and overwrite.
func (d Deps) overwriteHits(ctx context.Context, retrieved, hits []domain.Passage) error {
	if len(hits) == 0 {
		return nil
	}
	// retrieved first so its content/embedding (already stored, already
	// embedded) is kept; hits contributes only the new location.
	combined := make([]domain.Passage, 0, len(retrieved)+len(hits))
	combined = append(combined, retrieved...)
	combined = append(combined, hits...)
	merged := passage.MergeByContentID(combined)

	records := make([]semantic.Record, len(merged))
	for i, p := range merged {
		records[i] = semantic.FromPassage(p)
	}
	if err := d.Store.Upsert(ctx, records, semantic.Overwrite); err != nil {
		return err
	}
	if d.Logger != nil {
		d.Logger.Info("overwrote existing passages", "count", len(records))
	}
	return nil
}

// writeMisses is the misses tail: embed only the genuinely new passages
// and write them under the FAIL policy (§4.6, §4.7).
func (d Deps) writeMisses(ctx context.Context, misses []domain.Passage) error {
	if len(misses) == 0 {
		return nil
	}
	embedded, err := d.Embedder.EmbedPassages(ctx, misses)
	if err != nil {
		return err
	}
	records := make([]semantic.Record, len(embedded))
	for i, p := range embedded {
		records[i] = semantic.FromPassage(p)
	}
	if err := d.Store.Upsert(ctx, records, semantic.Fail); err != nil {
		return err
	}
	if d.Logger != nil {
		d.Logger.Info("wrote new passages", "count", len(records))
	}
	return nil
}
