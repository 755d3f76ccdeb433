package types

// StreamUpdate carries the full text generated so far
type StreamUpdate struct {
	Text string
}

// Passage is a chunk of a source document eligible for retrieval
type Passage struct {
	Text   string
	Offset int       // Byte offset in the source document
	Vector []float32 // Populated lazily on first retrieval
	Score  float64   // Cosine similarity to the query once ranked
}
