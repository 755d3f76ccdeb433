// Package chunker divides prose documents into passages for embedding and retrieval.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultChunkSize, chunker.DefaultOverlap)
//	for _, p := range c.Split(note) {
//	    fmt.Printf("offset %d: %d chars\n", p.Offset, utf8.RuneCountInString(p.Text))
//	}
//
// # Chunking Strategy
//
// Passages follow natural boundaries, coarsest first:
//   - Paragraphs: text separated by a blank line
//   - Sentences: a paragraph longer than the size limit is split after . ! or ?
//   - Hard cuts: a sentence still longer than the limit is cut at rune boundaries
//
// Consecutive small pieces are merged back together while the merged passage
// stays within the limit, so short paragraphs share a passage.
//
// # Offsets
//
// Every passage is an exact slice of the source and records its byte offset,
// so callers can map a retrieved passage back to the note it came from.
// With a positive overlap, each passage after the first starts up to that many
// characters before its own content, repeating the tail of its predecessor.
//
// Sizes are measured in characters (runes), not tokens.
package chunker
