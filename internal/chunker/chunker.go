// Package chunker splits long text into bounded segments for speech synthesis,
// breaking at sentence boundaries first, then at words, and only as a last
// resort inside a word.
package chunker

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidMaxLength is returned when the requested chunk size is not positive.
var ErrInvalidMaxLength = errors.New("chunker: max length must be positive")

// Chunk is a contiguous piece of the input text. Length is measured in runes.
type Chunk struct {
	Index   int
	Content string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Content)
}

// Split breaks text into ordered chunks of at most maxLength runes. Whitespace
// separating sentences or words is collapsed to a single space inside a chunk
// and dropped at chunk boundaries; all other characters are preserved in order.
func Split(text string, maxLength int) ([]Chunk, error) {
	if maxLength <= 0 {
		return nil, ErrInvalidMaxLength
	}
	acc := accumulator{max: maxLength}
	for _, sentence := range Sentences(text) {
		if runeLen(sentence) <= maxLength {
			acc.add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			if runeLen(word) <= maxLength {
				acc.add(word)
				continue
			}
			acc.addOversized(word)
		}
	}
	acc.flush()
	return acc.chunks, nil
}

// Sentences splits text after '.', '!' or '?' when followed by whitespace.
// Surrounding whitespace is trimmed and empty sentences are dropped.
func Sentences(text string) []string {
	var out []string
	start := 0
	var prev rune
	for i, r := range text {
		if unicode.IsSpace(r) && isTerminal(prev) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i
		}
		prev = r
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

type accumulator struct {
	max     int
	current strings.Builder
	size    int
	chunks  []Chunk
}

// add appends piece (at most max runes) to the running chunk, closing the
// chunk first when the piece plus a separating space would not fit.
func (a *accumulator) add(piece string) {
	n := runeLen(piece)
	if a.size > 0 && a.size+1+n > a.max {
		a.flush()
	}
	if a.size > 0 {
		a.current.WriteByte(' ')
		a.size++
	}
	a.current.WriteString(piece)
	a.size += n
}

// addOversized hard-splits word into max-rune slices. Every slice but the last
// becomes its own chunk; the last one seeds the next chunk.
func (a *accumulator) addOversized(word string) {
	a.flush()
	runes := []rune(word)
	for len(runes) > a.max {
		a.chunks = append(a.chunks, Chunk{Index: len(a.chunks), Content: string(runes[:a.max])})
		runes = runes[a.max:]
	}
	if len(runes) > 0 {
		a.add(string(runes))
	}
}

func (a *accumulator) flush() {
	if a.size == 0 {
		return
	}
	a.chunks = append(a.chunks, Chunk{Index: len(a.chunks), Content: a.current.String()})
	a.current.Reset()
	a.size = 0
}
