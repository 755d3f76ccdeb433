package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

const (
	// DefaultChunkSize is the target maximum passage length in characters
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of characters repeated from the previous passage
	DefaultOverlap = 0
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n\s*`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// Chunker splits prose documents into passages for retrieval
type Chunker struct {
	size    int
	overlap int
}

// span is a byte range [start, end) in the source document
type span struct {
	start int
	end   int
}

// New creates a Chunker. Non-positive size selects DefaultChunkSize;
// overlap is clamped to half the size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the maximum passage length in characters
func (c *Chunker) Size() int {
	return c.size
}

// Split divides doc into passages. Each passage is a contiguous slice of doc:
// doc[p.Offset:p.Offset+len(p.Text)] == p.Text.
func (c *Chunker) Split(doc string) []types.Passage {
	units := c.units(doc)
	if len(units) == 0 {
		return nil
	}

	passages := make([]types.Passage, 0, len(units))
	prevStart := 0
	flush := func(s span) {
		start := s.start
		if c.overlap > 0 && len(passages) > 0 {
			start = backRunes(doc, s.start, c.overlap, prevStart)
		}
		text := doc[start:s.end]
		if strings.TrimSpace(text) == "" {
			return
		}
		passages = append(passages, types.Passage{Text: text, Offset: start})
		prevStart = s.start
	}

	// Greedily merge consecutive units while the merged span fits
	cur := units[0]
	for _, u := range units[1:] {
		if runeLen(doc[cur.start:u.end]) <= c.size {
			cur.end = u.end
			continue
		}
		flush(cur)
		cur = u
	}
	flush(cur)

	return passages
}

// units breaks doc into pieces no longer than the chunk size: whole paragraphs
// when they fit, else sentences, else hard cuts at rune boundaries
func (c *Chunker) units(doc string) []span {
	var units []span
	for _, para := range paragraphs(doc) {
		if runeLen(doc[para.start:para.end]) <= c.size {
			units = append(units, para)
			continue
		}
		for _, sent := range sentences(doc, para) {
			if runeLen(doc[sent.start:sent.end]) <= c.size {
				units = append(units, sent)
				continue
			}
			units = append(units, hardCut(doc, sent, c.size)...)
		}
	}
	return units
}

func paragraphs(doc string) []span {
	var out []span
	prev := 0
	for _, m := range paragraphBreak.FindAllStringIndex(doc, -1) {
		if s, ok := trim(doc, span{prev, m[0]}); ok {
			out = append(out, s)
		}
		prev = m[1]
	}
	if s, ok := trim(doc, span{prev, len(doc)}); ok {
		out = append(out, s)
	}
	return out
}

func sentences(doc string, para span) []span {
	text := doc[para.start:para.end]
	var out []span
	prev := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s, ok := trim(doc, span{para.start + prev, para.start + m[1]}); ok {
			out = append(out, s)
		}
		prev = m[1]
	}
	if s, ok := trim(doc, span{para.start + prev, para.end}); ok {
		out = append(out, s)
	}
	return out
}

func hardCut(doc string, s span, size int) []span {
	var out []span
	start, count := s.start, 0
	for i := range doc[s.start:s.end] {
		if count == size {
			out = append(out, span{start, s.start + i})
			start, count = s.start+i, 0
		}
		count++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

// trim shrinks s to exclude surrounding whitespace; ok is false when nothing remains
func trim(doc string, s span) (span, bool) {
	for s.start < s.end {
		r, size := utf8.DecodeRuneInString(doc[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.start += size
	}
	for s.end > s.start {
		r, size := utf8.DecodeLastRuneInString(doc[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.end -= size
	}
	return s, s.end > s.start
}

// backRunes moves pos back by n runes, never before floor
func backRunes(doc string, pos, n, floor int) int {
	for n > 0 && pos > floor {
		_, size := utf8.DecodeLastRuneInString(doc[:pos])
		pos -= size
		n--
	}
	return pos
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
