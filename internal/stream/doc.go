// Package stream decodes streamed completion responses into accumulated-text updates.
//
// Two framings are supported:
//
//   - NDJSON: one JSON object per line, as emitted by Ollama. The text fragment is
//     at "response" (generate) or "message.content" (chat), and "done": true ends the stream.
//   - EventStream: "data: <json>" lines as emitted by OpenAI-compatible servers. The
//     fragment is at "choices[0].delta.content" and "data: [DONE]" ends the stream.
//
// The body is read in raw chunks. A line cut at a chunk boundary is held back and
// completed by the next chunk, so the sequence of updates is the same however the
// transport splits the payload. Each update carries the full text so far.
//
// Usage:
//
//	dec := stream.NewDecoder(resp.Body, stream.EventStream)
//	for {
//	    update, err := dec.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    render(update.Text)
//	}
//
// A line that cannot be parsed is retried as a server error envelope
// ({"error": "..."} or {"error": {"message": "..."}}) spanning the rest of the
// buffered data; the resulting *types.StreamProtocolError carries the server
// message when one was found.
package stream
