package chunker

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func joined(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
	}
	return b.String()
}

func TestSplitRejectsNonPositiveMax(t *testing.T) {
	if _, err := Split("hello", 0); !errors.Is(err, ErrInvalidMaxLength) {
		t.Fatalf("expected ErrInvalidMaxLength, got %v", err)
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks, err := Split("  \n\t ", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %#v", chunks)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("Hello there. General Kenobi!", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "Hello there. General Kenobi!" {
		t.Fatalf("expected the whole text as one chunk, got %#v", chunks)
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("First sentence. Second one!  Third?\nFourth. 3.14 stays")
	want := []string{"First sentence.", "Second one!", "Third?", "Fourth.", "3.14 stays"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitBreaksOnlyAtSentenceBoundaries(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon! Zeta eta theta? Iota kappa."
	chunks, err := Split(text, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Alpha beta gamma.", "Delta epsilon!", "Zeta eta theta?", "Iota kappa."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %#v", len(want), chunks)
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], c.Content)
		}
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestSplitGroupsSentencesGreedily(t *testing.T) {
	chunks, err := Split("One. Two. Three. Four.", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"One. Two.", "Three.", "Four."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %v, got %#v", want, chunks)
	}
	for i := range want {
		if chunks[i].Content != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], chunks[i].Content)
		}
	}
}

func TestSplitFallsBackToWords(t *testing.T) {
	text := "this sentence is far too long to fit in one chunk"
	chunks, err := Split(text, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected word fallback to produce several chunks, got %#v", chunks)
	}
	for _, c := range chunks {
		if c.Len() > 12 {
			t.Fatalf("chunk %q exceeds max", c.Content)
		}
		for _, w := range strings.Fields(c.Content) {
			if !strings.Contains(text, w) {
				t.Fatalf("word %q was broken", w)
			}
		}
	}
}

func TestSplitHardSplitsLongWord(t *testing.T) {
	chunks, err := Split("abcdefghij kl", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"abcd", "efgh", "ij", "kl"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %v, got %#v", want, chunks)
	}
	for i := range want {
		if chunks[i].Content != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], chunks[i].Content)
		}
	}
}

func TestSplitHardSplitTailSeedsAccumulation(t *testing.T) {
	chunks, err := Split("abcdefg h", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Content != "abcde" || chunks[1].Content != "fg h" {
		t.Fatalf("expected tail slice to absorb next word, got %#v", chunks)
	}
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("ż", 9)
	chunks, err := Split(text, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %#v", chunks)
	}
	for _, c := range chunks {
		if c.Len() > 4 {
			t.Fatalf("chunk %q exceeds 4 runes", c.Content)
		}
	}
}

func TestSplitLongInputProducesThreeChunks(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	text := strings.Repeat(sentence, 9000/len(sentence)+1)[:9000]
	chunks, err := Split(text, 4000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
}

func TestSplitProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdeéż .!?\n\t,")
	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(400)
		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)
		max := 1 + rng.Intn(30)

		chunks, err := Split(text, max)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, c := range chunks {
			if c.Content == "" {
				t.Fatalf("iteration %d: empty chunk at %d", iter, i)
			}
			if c.Len() > max {
				t.Fatalf("iteration %d: chunk %q exceeds %d", iter, c.Content, max)
			}
			if c.Index != i {
				t.Fatalf("iteration %d: chunk %d has index %d", iter, i, c.Index)
			}
		}
		if got, want := stripSpace(joined(chunks)), stripSpace(text); got != want {
			t.Fatalf("iteration %d: lost content\nwant %q\ngot  %q", iter, want, got)
		}
	}
}
