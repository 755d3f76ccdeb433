package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the runner
var (
	// ErrCancelled is returned when the caller aborts an operation
	ErrCancelled = errors.New("operation cancelled")

	// ErrProviderUnreachable is returned for connection and HTTP-level failures
	ErrProviderUnreachable = errors.New("provider unreachable")

	// ErrStreamProtocol matches every *StreamProtocolError via errors.Is
	ErrStreamProtocol = errors.New("stream protocol error")

	// ErrEmbeddingUnavailable is returned when an embedding could not be obtained
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrNoEmbeddingModel is returned when retrieval is requested without an embedding model
	ErrNoEmbeddingModel = errors.New("no embedding model configured")

	// ErrEmptyText is returned when an embedding is requested for empty text
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnknownProvider is returned for a provider kind outside the closed set
	ErrUnknownProvider = errors.New("unknown provider kind")
)

// GenericStreamMessage is reported when neither a record nor an error envelope could be parsed
const GenericStreamMessage = "could not parse stream message"

// StreamProtocolError reports malformed or unparseable stream content.
// Envelope is true when Message came from a structured error object sent by the server.
type StreamProtocolError struct {
	Message  string
	Envelope bool
}

func (e *StreamProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStreamProtocol.Error(), e.Message)
}

// Is lets errors.Is(err, ErrStreamProtocol) match
func (e *StreamProtocolError) Is(target error) bool {
	return target == ErrStreamProtocol
}
