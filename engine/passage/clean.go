// Package passage implements the passage-shaping stages of the ingestion
// pipeline that sit between the document parser and the duplicate checker:
// cleaning, splitting into fixed-size windows, content-addressed id
// assignment, and metadata merging (§4.2–§4.4).
package passage

import "strings"

// Clean removes empty lines from body and collapses repeated whitespace.
// Repeated-substring removal (header/footer stripping) is disabled by
// design (§4.2).
func Clean(body string) string {
	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := collapseWhitespace(line)
		if trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
