package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// Dialect selects how records inside the stream are framed
type Dialect int

const (
	// NDJSON is one bare JSON object per line (Ollama)
	NDJSON Dialect = iota
	// EventStream is "data: <json>" lines terminated by "data: [DONE]" (OpenAI-compatible)
	EventStream
)

const (
	// DefaultReadSize is the size of each raw read from the response body
	DefaultReadSize = 32 * 1024

	// MaxEnvelopeSize bounds how much of the body is read to recover an error envelope
	MaxEnvelopeSize = 64 << 10

	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

func (d Dialect) String() string {
	switch d {
	case NDJSON:
		return "ndjson"
	case EventStream:
		return "event-stream"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Decoder turns a chunked response body into accumulated-text updates.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	dialect Dialect
	buf     []byte

	pending string   // unterminated trailing partial line
	lines   []string // complete lines not yet consumed
	text    strings.Builder

	eof  bool
	done bool
	err  error
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader, dialect Dialect) *Decoder {
	return &Decoder{
		r:       r,
		dialect: dialect,
		buf:     make([]byte, DefaultReadSize),
	}
}

// Text returns the text accumulated so far
func (d *Decoder) Text() string {
	return d.text.String()
}

// Next returns the next update. It returns io.EOF once the stream completed
// normally, types.ErrCancelled when ctx is done, a *types.StreamProtocolError
// for malformed content, and types.ErrProviderUnreachable when the
// connection fails mid-stream. After an error every call returns that error.
func (d *Decoder) Next(ctx context.Context) (types.StreamUpdate, error) {
	for {
		if d.err != nil {
			return types.StreamUpdate{}, d.err
		}
		if ctx.Err() != nil {
			return types.StreamUpdate{}, d.fail(types.ErrCancelled)
		}
		if d.done {
			return types.StreamUpdate{}, io.EOF
		}

		if len(d.lines) > 0 {
			line := d.lines[0]
			d.lines = d.lines[1:]

			fragment, terminal, err := d.decodeLine(line)
			if err != nil {
				return types.StreamUpdate{}, d.fail(err)
			}
			if terminal {
				d.done = true
			}
			if fragment == "" {
				continue
			}
			d.text.WriteString(fragment)
			return types.StreamUpdate{Text: d.text.String()}, nil
		}

		if d.eof {
			if d.pending != "" {
				d.lines = append(d.lines, d.pending)
				d.pending = ""
				continue
			}
			d.done = true
			return types.StreamUpdate{}, io.EOF
		}

		if err := d.fill(ctx); err != nil {
			return types.StreamUpdate{}, d.fail(err)
		}
	}
}

// fill reads one raw chunk and splits it into complete lines,
// keeping the unterminated tail for the next chunk
func (d *Decoder) fill(ctx context.Context) error {
	n, err := d.r.Read(d.buf)
	if n > 0 {
		data := d.pending + string(d.buf[:n])
		parts := strings.Split(data, "\n")
		d.pending = parts[len(parts)-1]
		d.lines = append(d.lines, parts[:len(parts)-1]...)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		d.eof = true
		return nil
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return types.ErrCancelled
	default:
		return fmt.Errorf("%w: read stream: %v", types.ErrProviderUnreachable, err)
	}
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}

// decodeLine extracts the text fragment of one record
func (d *Decoder) decodeLine(line string) (fragment string, terminal bool, err error) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return "", false, nil
	}

	switch d.dialect {
	case EventStream:
		return d.decodeEvent(line)
	default:
		return d.decodeObject(line)
	}
}

type ndjsonRecord struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool            `json:"done"`
	Error json.RawMessage `json:"error"`
}

func (d *Decoder) decodeObject(line string) (string, bool, error) {
	var rec ndjsonRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return "", false, d.envelopeError(line)
	}
	if msg, ok := errorMessage(rec.Error); ok {
		return "", false, &types.StreamProtocolError{Message: msg, Envelope: true}
	}

	fragment := rec.Response
	if rec.Message != nil {
		fragment += rec.Message.Content
	}
	return fragment, rec.Done, nil
}

type eventRecord struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func (d *Decoder) decodeEvent(line string) (string, bool, error) {
	// SSE comments and non-data fields carry no text
	if strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") ||
		strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:") {
		return "", false, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return "", true, nil
	}
	if payload == "" {
		return "", false, nil
	}

	var rec eventRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return "", false, d.envelopeError(line)
	}
	if msg, ok := errorMessage(rec.Error); ok {
		return "", false, &types.StreamProtocolError{Message: msg, Envelope: true}
	}

	if len(rec.Choices) == 0 {
		return "", false, nil
	}
	return rec.Choices[0].Delta.Content, false, nil
}

// envelopeError handles a line that failed to parse. Some servers answer with a
// single (possibly multi-line) error object instead of a stream, so the rest of
// the body is read (bounded) and tried as an error envelope before giving up.
func (d *Decoder) envelopeError(line string) error {
	tail := d.pending
	if !d.eof {
		more, _ := io.ReadAll(io.LimitReader(d.r, MaxEnvelopeSize))
		tail += string(more)
		d.eof = true
	}
	d.pending = ""

	rest := append([]string{line}, d.lines...)
	d.lines = nil
	if tail != "" {
		rest = append(rest, strings.Split(tail, "\n")...)
	}
	remaining := strings.Join(rest, "\n")

	candidates := []string{remaining}
	if d.dialect == EventStream {
		candidates = append(candidates, stripDataPrefixes(rest))
	}

	for _, candidate := range candidates {
		var envelope struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
			continue
		}
		if msg, ok := errorMessage(envelope.Error); ok {
			return &types.StreamProtocolError{Message: msg, Envelope: true}
		}
	}

	return &types.StreamProtocolError{Message: types.GenericStreamMessage}
}

func stripDataPrefixes(lines []string) string {
	stripped := make([]string, len(lines))
	for i, l := range lines {
		stripped[i] = strings.TrimPrefix(strings.TrimRight(l, "\r"), dataPrefix)
	}
	return strings.Join(stripped, "\n")
}

// errorMessage reads an "error" field that is either a string or an object with a message
func errorMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", false
		}
		return s, true
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}

	return string(raw), true
}

// Drain consumes the decoder, forwarding every update to onUpdate, and returns
// the final text. On error no partial text is returned.
func Drain(ctx context.Context, dec *Decoder, onUpdate func(string)) (string, error) {
	for {
		update, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			return dec.Text(), nil
		}
		if err != nil {
			return "", err
		}
		if onUpdate != nil {
			onUpdate(update.Text)
		}
	}
}
