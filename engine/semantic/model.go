package semantic

import "github.com/hutschen/doc-audit-api/engine/domain"

// Record is what the store persists and returns for one passage: the
// content-addressed id, its text, embedding, and the locations that
// reference it. Embedding is omitted on search results (the store reports
// only a similarity score there).
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Locations []domain.Location
}

// ToPassage converts a store Record into the domain Passage it represents.
func (r Record) ToPassage() domain.Passage {
	return domain.Passage{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: r.Embedding,
		Locations: r.Locations,
	}
}

// FromPassage builds a store Record from a domain Passage.
func FromPassage(p domain.Passage) Record {
	return Record{
		ID:        p.ID,
		Content:   p.Content,
		Embedding: p.Embedding,
		Locations: p.Locations,
	}
}

// SearchHit is one result of a top-k similarity search: a record plus the
// cosine score the store computed for it.
type SearchHit struct {
	Record
	Score float32
}

// WritePolicy selects how Upsert behaves when a record's id already exists.
type WritePolicy int

const (
	// Fail refuses the write if the id is already present.
	Fail WritePolicy = iota
	// Overwrite unconditionally replaces any existing record.
	Overwrite
)
