// Package types provides shared type definitions for the local-gpt action runner.
//
// This package defines the domain types passed between the provider clients,
// the fallback orchestrator, the retrieval subsystem, and the outer surfaces
// (MCP server, CLI).
//
// # Core Types
//
// Action is a saved, named prompt template applied to user-supplied text:
//
//	action := types.Action{
//	    Name:   "Summarize",
//	    System: "You are a helpful assistant.",
//	    Prompt: "Summarize the text in one paragraph.",
//	}
//
// ProviderConfig describes one model server. Its Kind is a closed set of
// primary and fallback variants over two wire dialects:
//
//	cfg := types.ProviderConfig{
//	    Kind:           types.KindOllama,
//	    BaseURL:        "http://localhost:11434",
//	    DefaultModel:   "llama3",
//	    EmbeddingModel: "nomic-embed-text",
//	}
//
// StreamUpdate always carries the full text generated so far, never a delta,
// so a consumer can simply re-render the latest value.
//
// Passage is a chunk of a source document eligible for retrieval, with its
// byte offset in the source and, once ranked, its similarity score.
//
// # Errors
//
// The error taxonomy is shared by every component:
//
//	errors.Is(err, types.ErrCancelled)           // user abort, never shown as a failure
//	errors.Is(err, types.ErrProviderUnreachable) // triggers fallback when configured
//	errors.Is(err, types.ErrStreamProtocol)      // malformed stream, no fallback
//	errors.Is(err, types.ErrEmbeddingUnavailable)
//
// StreamProtocolError carries the server diagnostic when one was available.
package types
