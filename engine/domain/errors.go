package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy entry. Callers use errors.Is/errors.As
// against these rather than matching on message text.
var (
	ErrParse          = errors.New("document could not be parsed")
	ErrClient         = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrStore          = errors.New("vector store call failed")
	ErrEmbed          = errors.New("embedding model call failed")
	ErrDuplicateWrite = errors.New("write observed an id that should not exist")
)

// ParseError wraps ErrParse with the source that failed to parse.
type ParseError struct {
	SourceID string
	Reason   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s: %v", e.SourceID, ErrParse, e.Reason)
}
func (e *ParseError) Unwrap() error { return ErrParse }

// NewParseError builds a ParseError for sourceID wrapping reason.
func NewParseError(sourceID string, reason error) *ParseError {
	return &ParseError{SourceID: sourceID, Reason: reason}
}

// ClientError wraps ErrClient with the offending field and value.
type ClientError struct {
	Field string
	Value string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s=%q", ErrClient, e.Field, e.Value)
}
func (e *ClientError) Unwrap() error { return ErrClient }

// NewClientError builds a ClientError for the given field/value pair.
func NewClientError(field, value string) *ClientError {
	return &ClientError{Field: field, Value: value}
}

// NotFoundError wraps ErrNotFound with the entity kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrNotFound, e.Kind, e.ID)
}
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for the given kind/id pair.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// StoreError wraps ErrStore with the operation that failed.
type StoreError struct {
	Op     string
	Reason error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Reason)
}
func (e *StoreError) Unwrap() error { return ErrStore }

// NewStoreError builds a StoreError for the operation that failed.
func NewStoreError(op string, reason error) *StoreError {
	return &StoreError{Op: op, Reason: reason}
}

// EmbedError wraps ErrEmbed with the batch size that failed to embed.
type EmbedError struct {
	BatchSize int
	Reason    error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("%s: batch of %d: %v", ErrEmbed, e.BatchSize, e.Reason)
}
func (e *EmbedError) Unwrap() error { return ErrEmbed }

// NewEmbedError builds an EmbedError for the batch that failed.
func NewEmbedError(batchSize int, reason error) *EmbedError {
	return &EmbedError{BatchSize: batchSize, Reason: reason}
}

// DuplicateWriteError wraps ErrDuplicateWrite with the colliding id. Its
// appearance indicates a concurrent-writer bug: the duplicate checker
// proved the id absent, but a FAIL-policy write later observed it present.
type DuplicateWriteError struct {
	ID string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("%s: id %q", ErrDuplicateWrite, e.ID)
}
func (e *DuplicateWriteError) Unwrap() error { return ErrDuplicateWrite }

// NewDuplicateWriteError builds a DuplicateWriteError for the colliding id.
func NewDuplicateWriteError(id string) *DuplicateWriteError {
	return &DuplicateWriteError{ID: id}
}
