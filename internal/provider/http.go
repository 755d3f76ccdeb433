package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

const (
	mimeJSON     = "application/json"
	maxErrorBody = 4096
)

// normalizeBaseURL drops trailing slashes and a trailing /v1 so paths can be appended
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/v1")
	return strings.TrimRight(base, "/")
}

// doJSON sends a JSON request and returns the response once a 2xx status is seen.
// The caller owns the returned body.
func doJSON(ctx context.Context, client *http.Client, method, url string, payload any, header http.Header) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", types.ErrProviderUnreachable, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", mimeJSON)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, statusError(resp)
	}

	return resp, nil
}

// transportError classifies a failed round trip
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return types.ErrCancelled
	}
	return fmt.Errorf("%w: %v", types.ErrProviderUnreachable, err)
}

// statusError reports a non-2xx response, using the server's error message when it sent one
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(data))
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Error) > 0 {
		var s string
		var obj struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(envelope.Error, &s) == nil && s != "":
			msg = s
		case json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "":
			msg = obj.Message
		}
	}

	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%w: %s %s returned %d: %s",
		types.ErrProviderUnreachable, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, msg)
}
