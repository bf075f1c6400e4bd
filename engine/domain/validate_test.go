package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidateSourceID(t *testing.T) {
	if err := ValidateSourceID(uuid.New().String()); err != nil {
		t.Fatalf("valid uuid rejected: %v", err)
	}
	if err := ValidateSourceID("not-a-uuid"); err == nil {
		t.Fatal("malformed id accepted")
	}
	if err := ValidateSourceID(""); err == nil {
		t.Fatal("empty id accepted")
	}
}

func TestValidateSourceIDs(t *testing.T) {
	ids := []string{uuid.New().String(), uuid.New().String()}
	if err := ValidateSourceIDs(ids); err != nil {
		t.Fatalf("valid ids rejected: %v", err)
	}
	if err := ValidateSourceIDs(nil); err != nil {
		t.Fatalf("empty batch rejected: %v", err)
	}
	bad := append(append([]string{}, ids...), "garbage")
	if err := ValidateSourceIDs(bad); err == nil {
		t.Fatal("batch with one malformed id accepted")
	}
}

func TestValidateQueryText(t *testing.T) {
	if err := ValidateQueryText("brake pads"); err != nil {
		t.Fatalf("non-empty text rejected: %v", err)
	}
	if err := ValidateQueryText(""); err == nil {
		t.Fatal("empty text accepted")
	}
}

func TestValidateTopK(t *testing.T) {
	if err := ValidateTopK(3); err != nil {
		t.Fatalf("positive top_k rejected: %v", err)
	}
	if err := ValidateTopK(0); err == nil {
		t.Fatal("zero top_k accepted")
	}
	if err := ValidateTopK(-1); err == nil {
		t.Fatal("negative top_k accepted")
	}
}
