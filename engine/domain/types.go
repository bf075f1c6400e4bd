// Package domain defines the core entities of the ingestion system —
// sources, passages, and locations — and the validation gate applied at
// pipeline and HTTP entry points.
package domain

// Status is the lifecycle state of a source, as reported to callers.
// waiting, aborted, and indexing are tracked in-flight by the broker;
// indexed and not-found are derived by consulting the store.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusAborted  Status = "aborted"
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusNotFound Status = "not-found"
)

// DocxLocation tags a Location contributed from a .docx source. It is the
// only location type this implementation produces.
const DocxLocation = "docx"

// Location records where one source contributed a passage: under which
// source id, in what format, and at what heading path within that source.
type Location struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Path []string `json:"path"`
}

// Passage is the fundamental stored unit: cleaned text, its embedding, and
// the set of sources (and heading paths within them) it was drawn from.
type Passage struct {
	ID        string
	Content   string
	Embedding []float32
	Locations []Location
}

// HasLocation reports whether id appears among p's locations.
func (p Passage) HasLocation(id string) bool {
	for _, loc := range p.Locations {
		if loc.ID == id {
			return true
		}
	}
	return false
}

// WithoutSources returns a copy of p with any location referencing an id in
// exclude removed. The original Locations slice is not mutated.
func (p Passage) WithoutSources(exclude map[string]bool) Passage {
	kept := make([]Location, 0, len(p.Locations))
	for _, loc := range p.Locations {
		if !exclude[loc.ID] {
			kept = append(kept, loc)
		}
	}
	out := p
	out.Locations = kept
	return out
}

// Section is one (heading-path, body-text) tuple emitted by the document
// parser: a run of body text under a given heading path.
type Section struct {
	HeadingPath []string
	Body        string
}

// Result is one element of a query response: a passage pruned down to the
// locations relevant to the queried source ids, plus its similarity score.
type Result struct {
	ID        string     `json:"id"`
	Score     float32    `json:"score"`
	Content   string     `json:"content"`
	Locations []Location `json:"locations"`
}
