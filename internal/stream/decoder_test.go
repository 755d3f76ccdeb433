package stream

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// chunkReader returns one chunk per Read call, then err (io.EOF when nil)
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, dec *Decoder) ([]string, error) {
	t.Helper()
	var updates []string
	for {
		u, err := dec.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return updates, nil
		}
		if err != nil {
			return updates, err
		}
		updates = append(updates, u.Text)
	}
}

func sseLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func TestDecoder_EventStream(t *testing.T) {
	t.Run("fragments across chunks", func(t *testing.T) {
		r := &chunkReader{chunks: []string{
			sseLine("He"),
			sseLine("llo") + "data: [DONE]\n",
		}}
		dec := NewDecoder(r, EventStream)

		updates, err := collect(t, dec)
		require.NoError(t, err)
		assert.Equal(t, []string{"He", "Hello"}, updates)
		assert.Equal(t, "Hello", dec.Text())
	})

	t.Run("line split mid-json", func(t *testing.T) {
		full := sseLine("He") + sseLine("llo") + "data: [DONE]\n"
		r := &chunkReader{chunks: []string{full[:20], full[20:50], full[50:]}}

		updates, err := collect(t, NewDecoder(r, EventStream))
		require.NoError(t, err)
		assert.Equal(t, []string{"He", "Hello"}, updates)
	})

	t.Run("done sentinel stops decoding", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("a") + "data: [DONE]\n" + "data: garbage\n"}}

		updates, err := collect(t, NewDecoder(r, EventStream))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, updates)
	})

	t.Run("comments, fields and empty deltas are skipped", func(t *testing.T) {
		r := &chunkReader{chunks: []string{
			": keep-alive\n",
			"event: message\n",
			`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n",
			"\n",
			sseLine("x") + "\r\n",
			`data: {"choices":[]}` + "\n",
			"data: [DONE]\n",
		}}

		updates, err := collect(t, NewDecoder(r, EventStream))
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, updates)
	})

	t.Run("crlf line endings", func(t *testing.T) {
		r := &chunkReader{chunks: []string{
			`data: {"choices":[{"delta":{"content":"a"}}]}` + "\r\n",
			`data: {"choices":[{"delta":{"content":"b"}}]}` + "\r\ndata: [DONE]\r\n",
		}}

		updates, err := collect(t, NewDecoder(r, EventStream))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "ab"}, updates)
	})

	t.Run("end of body without sentinel", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("a"), strings.TrimSuffix(sseLine("b"), "\n")}}

		updates, err := collect(t, NewDecoder(r, EventStream))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "ab"}, updates)
	})
}

func TestDecoder_NDJSON(t *testing.T) {
	t.Run("generate records", func(t *testing.T) {
		r := &chunkReader{chunks: []string{
			`{"model":"llama3","response":"Hel","done":false}` + "\n" + `{"response":"lo",`,
			`"done":false}` + "\n" + `{"response":"","done":true,"total_duration":12}` + "\n",
		}}
		dec := NewDecoder(r, NDJSON)

		updates, err := collect(t, dec)
		require.NoError(t, err)
		assert.Equal(t, []string{"Hel", "Hello"}, updates)
		assert.Equal(t, "Hello", dec.Text())
	})

	t.Run("chat records", func(t *testing.T) {
		r := &chunkReader{chunks: []string{
			`{"message":{"role":"assistant","content":"Hi"},"done":false}` + "\n",
			`{"message":{"role":"assistant","content":"!"},"done":true}`,
		}}

		updates, err := collect(t, NewDecoder(r, NDJSON))
		require.NoError(t, err)
		assert.Equal(t, []string{"Hi", "Hi!"}, updates)
	})

	t.Run("done marker stops decoding", func(t *testing.T) {
		r := &chunkReader{chunks: []string{`{"response":"a","done":true}` + "\n" + `{"response":"zzz"}` + "\n"}}

		updates, err := collect(t, NewDecoder(r, NDJSON))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, updates)
	})

	t.Run("residual partial line at end of body", func(t *testing.T) {
		r := &chunkReader{chunks: []string{`{"response":"a"}` + "\n" + `{"response":"b","done":true}`}}

		updates, err := collect(t, NewDecoder(r, NDJSON))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "ab"}, updates)
	})

	t.Run("error record", func(t *testing.T) {
		r := &chunkReader{chunks: []string{`{"error":"model 'nope' not found"}` + "\n"}}

		_, err := collect(t, NewDecoder(r, NDJSON))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrStreamProtocol)

		var perr *types.StreamProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "model 'nope' not found", perr.Message)
		assert.True(t, perr.Envelope)
	})
}

func TestDecoder_ErrorEnvelope(t *testing.T) {
	t.Run("multi-line envelope in place of a stream", func(t *testing.T) {
		body := "{\n  \"error\": {\n    \"message\": \"Invalid API key\",\n    \"type\": \"auth\"\n  }\n}\n"
		r := &chunkReader{chunks: []string{body}}

		_, err := collect(t, NewDecoder(r, EventStream))
		var perr *types.StreamProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "Invalid API key", perr.Message)
		assert.True(t, perr.Envelope)
	})

	t.Run("data-prefixed error object", func(t *testing.T) {
		r := &chunkReader{chunks: []string{`data: {"error":{"message":"overloaded"}}` + "\n"}}

		_, err := collect(t, NewDecoder(r, EventStream))
		var perr *types.StreamProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "overloaded", perr.Message)
	})

	t.Run("unparseable content yields generic message", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("ok"), "data: {not json\n"}}
		dec := NewDecoder(r, EventStream)

		updates, err := collect(t, dec)
		assert.Equal(t, []string{"ok"}, updates)

		var perr *types.StreamProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, types.GenericStreamMessage, perr.Message)
		assert.False(t, perr.Envelope)

		// The error is sticky
		_, again := dec.Next(context.Background())
		assert.Equal(t, err, again)
	})

	t.Run("drain returns no partial text on error", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("partial"), "data: ???\n"}}

		var seen []string
		text, err := Drain(context.Background(), NewDecoder(r, EventStream), func(s string) {
			seen = append(seen, s)
		})
		assert.ErrorIs(t, err, types.ErrStreamProtocol)
		assert.Empty(t, text)
		assert.Equal(t, []string{"partial"}, seen)
	})
}

func TestDecoder_Cancellation(t *testing.T) {
	t.Run("cancel between records", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("a"), sseLine("b"), "data: [DONE]\n"}}
		dec := NewDecoder(r, EventStream)
		ctx, cancel := context.WithCancel(context.Background())

		u, err := dec.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", u.Text)

		cancel()
		_, err = dec.Next(ctx)
		assert.ErrorIs(t, err, types.ErrCancelled)
	})

	t.Run("cancel while read is blocked", func(t *testing.T) {
		pr, pw := io.Pipe()
		dec := NewDecoder(pr, NDJSON)
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			_, _ = pw.Write([]byte(`{"response":"a"}` + "\n"))
			cancel()
			// An HTTP body bound to a cancelled request fails its pending read
			_ = pw.CloseWithError(errors.New("net/http: request canceled"))
		}()

		text, err := Drain(ctx, dec, nil)
		assert.ErrorIs(t, err, types.ErrCancelled)
		assert.Empty(t, text)
	})

	t.Run("connection lost mid-stream", func(t *testing.T) {
		r := &chunkReader{chunks: []string{sseLine("a")}, err: errors.New("connection reset by peer")}

		updates, err := collect(t, NewDecoder(r, EventStream))
		assert.Equal(t, []string{"a"}, updates)
		assert.ErrorIs(t, err, types.ErrProviderUnreachable)
		assert.NotErrorIs(t, err, types.ErrCancelled)
	})
}

// Every way of splitting the same payload must produce the same updates
func TestDecoder_ChunkingInvariance(t *testing.T) {
	payloads := []struct {
		name    string
		dialect Dialect
		body    string
	}{
		{
			name:    "event stream",
			dialect: EventStream,
			body:    ": ping\n" + sseLine("Hé") + sseLine("") + sseLine("llo, ") + sseLine("wörld") + "data: [DONE]\n",
		},
		{
			name:    "ndjson",
			dialect: NDJSON,
			body: `{"response":"The "}` + "\n" + `{"response":""}` + "\n" +
				`{"response":"quick "}` + "\n" + `{"response":"fox","done":true}`,
		},
	}

	for _, p := range payloads {
		t.Run(p.name, func(t *testing.T) {
			want, err := collect(t, NewDecoder(&chunkReader{chunks: []string{p.body}}, p.dialect))
			require.NoError(t, err)
			require.NotEmpty(t, want)

			for i := 1; i < len(want); i++ {
				assert.Greater(t, len(want[i]), len(want[i-1]), "updates must grow")
				assert.True(t, strings.HasPrefix(want[i], want[i-1]))
			}

			// Every single split point
			for i := 0; i <= len(p.body); i++ {
				r := &chunkReader{chunks: []string{p.body[:i], p.body[i:]}}
				got, err := collect(t, NewDecoder(r, p.dialect))
				require.NoError(t, err)
				assert.Equal(t, want, got, "split at %d", i)
			}

			// Random multi-way splits, including byte-sized chunks
			rng := rand.New(rand.NewSource(42))
			for trial := 0; trial < 200; trial++ {
				got, err := collect(t, NewDecoder(&chunkReader{chunks: randomSplit(rng, p.body)}, p.dialect))
				require.NoError(t, err)
				assert.Equal(t, want, got, "trial %d", trial)
			}
		})
	}
}

func TestDecoder_ErrorEnvelopeChunking(t *testing.T) {
	body := "{\n  \"error\": {\n    \"message\": \"Invalid API key\"\n  }\n}\n"

	for _, dialect := range []Dialect{EventStream, NDJSON} {
		t.Run(dialect.String(), func(t *testing.T) {
			check := func(chunks []string, msg string, args ...interface{}) {
				_, err := collect(t, NewDecoder(&chunkReader{chunks: chunks}, dialect))
				var perr *types.StreamProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "Invalid API key", perr.Message, append([]interface{}{msg}, args...)...)
				assert.True(t, perr.Envelope)
			}

			for i := 0; i <= len(body); i++ {
				check([]string{body[:i], body[i:]}, "split at %d", i)
			}

			rng := rand.New(rand.NewSource(7))
			for trial := 0; trial < 100; trial++ {
				check(randomSplit(rng, body), "trial %d", trial)
			}
		})
	}
}

func randomSplit(rng *rand.Rand, s string) []string {
	var chunks []string
	for len(s) > 0 {
		n := 1 + rng.Intn(12)
		if n > len(s) {
			n = len(s)
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}

func TestDialect_String(t *testing.T) {
	assert.Equal(t, "ndjson", NDJSON.String())
	assert.Equal(t, "event-stream", EventStream.String())
	assert.Equal(t, "dialect(7)", Dialect(7).String())
}
