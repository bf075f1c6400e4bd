package domain

import (
	"strings"

	"github.com/google/uuid"
)

const minQueryLength = 1

// ValidateSourceID checks that id is a well-formed UUID string, the only
// shape a source id is ever allowed to take.
func ValidateSourceID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return NewClientError("source_id", id)
	}
	return nil
}

// ValidateSourceIDs validates a batch of ids in one pass.
func ValidateSourceIDs(ids []string) error {
	for _, id := range ids {
		if err := ValidateSourceID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQueryText rejects an empty or whitespace-only query string.
func ValidateQueryText(text string) error {
	if len(strings.TrimSpace(text)) < minQueryLength {
		return NewClientError("content", text)
	}
	return nil
}

// ValidateTopK rejects a non-positive top_k.
func ValidateTopK(topK int) error {
	if topK <= 0 {
		return NewClientError("top_k", "")
	}
	return nil
}
