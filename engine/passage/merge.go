package passage

import "github.com/hutschen/doc-audit-api/engine/domain"

// RecursiveMerge implements the generic metadata-merge rule (§4.4): keys
// present on only one side are taken as-is; keys present as maps on both
// sides are merged recursively; keys present as slices on both sides are
// concatenated left-then-right; anything else, the left side wins. It is
// the general rule that gives the `locations` field its concatenation
// semantics (invariant 6, §8) and is kept generic (rather than hard-coded
// to `locations`) so future metadata keys fall out of the same rule.
func RecursiveMerge(left, right map[string]any) map[string]any {
	out := make(map[string]any, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, rv := range right {
		lv, ok := out[k]
		if !ok {
			out[k] = rv
			continue
		}
		out[k] = mergeValue(lv, rv)
	}
	return out
}

func mergeValue(left, right any) any {
	if lm, ok := left.(map[string]any); ok {
		if rm, ok := right.(map[string]any); ok {
			return RecursiveMerge(lm, rm)
		}
		return left
	}
	if ls, ok := left.([]any); ok {
		if rs, ok := right.([]any); ok {
			out := make([]any, 0, len(ls)+len(rs))
			out = append(out, ls...)
			out = append(out, rs...)
			return out
		}
		return left
	}
	return left
}

// FromSection turns one parsed section into the (as yet unmerged) passages
// it produces: the section's body is cleaned and split into word windows,
// each window becomes a passage carrying a single Location pointing at
// sourceID and the section's heading path. An empty cleaned body (the
// parser emits one for an empty preamble, e.g. when the document opens
// with a heading) yields no passages.
func FromSection(section domain.Section, sourceID string, windowSize int) []domain.Passage {
	cleaned := Clean(section.Body)
	windows := Split(cleaned, windowSize)
	out := make([]domain.Passage, len(windows))
	for i, w := range windows {
		out[i] = domain.Passage{
			ID:      ContentID(w),
			Content: w,
			Locations: []domain.Location{{
				ID:   sourceID,
				Type: domain.DocxLocation,
				Path: append([]string(nil), section.HeadingPath...),
			}},
		}
	}
	return out
}

// MergeByContentID folds passages sharing the same id into one record per
// id, preserving first-seen order of ids. The first member's content and
// embedding are kept; locations from every member are concatenated in
// first-seen order, mirroring RecursiveMerge's list-concatenation rule
// applied to the `locations` field specifically (§4.4), and exact duplicate
// locations are then dropped by DedupeLocations.
func MergeByContentID(passages []domain.Passage) []domain.Passage {
	order := make([]string, 0, len(passages))
	groups := make(map[string][]domain.Passage, len(passages))
	for _, p := range passages {
		if _, seen := groups[p.ID]; !seen {
			order = append(order, p.ID)
		}
		groups[p.ID] = append(groups[p.ID], p)
	}

	out := make([]domain.Passage, 0, len(order))
	for _, id := range order {
		members := groups[id]
		merged := members[0]
		if len(members) > 1 {
			var locs []domain.Location
			for _, m := range members {
				locs = append(locs, m.Locations...)
			}
			merged.Locations = locs
		}
		merged.Locations = DedupeLocations(merged.Locations)
		out = append(out, merged)
	}
	return out
}

// DedupeLocations drops exact-duplicate (id, type, path) triples, keeping
// first occurrence order. A passage re-indexed from the same source with
// the same content must not accumulate repeated location entries — this
// is what makes ingest idempotent under identical inputs (invariant 5, §8).
func DedupeLocations(locs []domain.Location) []domain.Location {
	type key struct {
		id, typ, path string
	}
	seen := make(map[key]bool, len(locs))
	out := make([]domain.Location, 0, len(locs))
	for _, loc := range locs {
		k := key{loc.ID, loc.Type, joinPath(loc.Path)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, loc)
	}
	return out
}

func joinPath(path []string) string {
	// A literal separator unlikely to appear inside a heading text is
	// enough here; this is only used as a dedup key, never rendered.
	out := ""
	for i, seg := range path {
		if i > 0 {
			out += "\x1f"
		}
		out += seg
	}
	return out
}
