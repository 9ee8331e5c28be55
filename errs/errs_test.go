package errs

import "testing"

func TestErrorShape(t *testing.T) {
	e := New(ModelFileCorrupted, "the model file failed checksum verification", "sha256 mismatch: expected abc, got def")
	if !e.Valid() {
		t.Fatalf("expected valid error, got %+v", e)
	}
	if e.Category != CategoryModelLoadError {
		t.Fatalf("expected CategoryModelLoadError, got %s", e.Category)
	}
}

func TestErrorShapeRejectsShortFields(t *testing.T) {
	e := New(ModelFileCorrupted, "too short", "also short")
	if e.Valid() {
		t.Fatalf("expected invalid error for short message/details")
	}
}

func TestErrorShapeRejectsIdenticalFields(t *testing.T) {
	same := "identical text of sufficient length"
	e := New(ModelFileCorrupted, same, same)
	if e.Valid() {
		t.Fatalf("expected invalid error when message == details")
	}
}

func TestCategoryRanges(t *testing.T) {
	cases := []struct {
		code Code
		want Category
	}{
		{ModelFileNotFound, CategoryModelNotFound},
		{ModelFileCorrupted, CategoryModelLoadError},
		{InferenceModelNotLoaded, CategoryInferenceError},
		{NetworkUnreachable, CategoryNetworkError},
		{StorageInsufficientSpace, CategoryStorageError},
		{InvalidInputNullPointer, CategoryInvalidInput},
		{ResourceOutOfMemory, CategoryResourceExhausted},
		{OperationCancelled, CategoryCancelled},
	}
	for _, c := range cases {
		if got := category(c.code); got != c.want {
			t.Errorf("category(%d) = %s, want %s", c.code, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !New(NetworkConnectionTimeout, "connection timed out after deadline", "dial tcp: i/o timeout").Retryable() {
		t.Fatalf("expected NetworkConnectionTimeout to be retryable")
	}
	if New(InvalidInputNullPointer, "a required callback was nil", "on_token callback must not be nil").Retryable() {
		t.Fatalf("expected InvalidInputNullPointer to not be retryable")
	}
}

func TestDistinctCausesDistinctCodes(t *testing.T) {
	codes := []Code{ModelFileNotFound, ModelFileCorrupted, ModelInsufficientMemory, ModelIncompatibleArchitecture, ModelUnsupportedQuantization, ModelFileLocked}
	seen := map[Code]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %d", c)
		}
		seen[c] = true
	}
}
