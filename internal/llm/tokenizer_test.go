package llm

import "testing"

func TestNormalizeWhitespaceCollapsesAndTrims(t *testing.T) {
	got := NormalizeWhitespace("  The   quick\tbrown\nfox.  ")
	want := "The quick brown fox."
	if got != want {
		t.Fatalf("NormalizeWhitespace() = %q, want %q", got, want)
	}
}

func TestNormalizeWhitespaceEmpty(t *testing.T) {
	if got := NormalizeWhitespace("   "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
