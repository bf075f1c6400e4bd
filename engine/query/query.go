// Package query implements the query pipeline (§4.10): embed the query
// text, retrieve top-k by cosine (optionally filtered to a set of source
// ids), and prune each hit's locations down to the queried set before
// rendering it to the external surface.
package query

import (
	"context"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/embed"
	"github.com/hutschen/doc-audit-api/engine/semantic"
)

// DefaultTopK is used when a caller does not specify top_k (§6).
const DefaultTopK = 3

// Store is the narrow slice of the vector store contract the query
// pipeline needs. *semantic.VectorStore satisfies it; tests provide a fake.
type Store interface {
	SearchFiltered(ctx context.Context, embedding []float32, topK int, sourceIDs []string) ([]semantic.SearchHit, error)
}

// Deps are the collaborators the query pipeline is built from.
type Deps struct {
	Store    Store
	Embedder *embed.Adapter
}

// Query embeds content and retrieves the top-k most similar passages,
// restricted to sourceIDs if non-empty. Returned results have their
// locations pruned to only entries in sourceIDs (§4.10); when sourceIDs is
// empty, no pruning is applied since the search was unrestricted.
func (d Deps) Query(ctx context.Context, content string, topK int, sourceIDs []string) ([]domain.Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedded, err := d.Embedder.EmbedPassages(ctx, []domain.Passage{{Content: content}})
	if err != nil {
		return nil, err
	}
	queryVector := embedded[0].Embedding

	hits, err := d.Store.SearchFiltered(ctx, queryVector, topK, sourceIDs)
	if err != nil {
		return nil, domain.NewStoreError("query", err)
	}

	var restrict map[string]bool
	if len(sourceIDs) > 0 {
		restrict = make(map[string]bool, len(sourceIDs))
		for _, id := range sourceIDs {
			restrict[id] = true
		}
	}

	results := make([]domain.Result, len(hits))
	for i, hit := range hits {
		locs := hit.Locations
		if restrict != nil {
			pruned := make([]domain.Location, 0, len(locs))
			for _, loc := range locs {
				if restrict[loc.ID] {
					pruned = append(pruned, loc)
				}
			}
			locs = pruned
		}
		results[i] = domain.Result{
			ID:        hit.ID,
			Score:     hit.Score,
			Content:   hit.Content,
			Locations: locs,
		}
	}
	return results, nil
}
