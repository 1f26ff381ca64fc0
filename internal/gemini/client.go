package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultModel = "gemini-2.5-flash"

// Client talks to the Gemini streamGenerateContent endpoint. Construct it
// once and share it; it holds no per-request state.
type Client struct {
	BaseURL string
	AppID   string
	Model   string
	HTTP    *http.Client

	log *zap.Logger
}

func NewClient(baseURL, appID, model string, log *zap.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AppID:   appID,
		Model:   model,
		// No global timeout; streaming responses can run long and the
		// caller's context controls cancellation.
		HTTP: &http.Client{Timeout: 0},
		log:  log,
	}
}

// StreamGenerate opens one streaming exchange and returns immediately with
// two channels; both are closed when the exchange ends. Deltas arrive on
// chunks in network order. At most one error is sent on errs, and a
// context cancellation ends the stream silently: neither channel carries
// anything further.
func (c *Client) StreamGenerate(ctx context.Context, contents []Content) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		b, err := json.Marshal(generateRequest{Contents: contents})
		if err != nil {
			errs <- err
			return
		}

		url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.BaseURL, c.Model)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if c.AppID != "" {
			req.Header.Set("X-App-Id", c.AppID)
		}

		start := time.Now()
		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				errs <- fmt.Errorf("gemini: request failed: %s", resp.Status)
				return
			}
			errs <- fmt.Errorf("gemini: request failed: %s: %s", resp.Status, msg)
			return
		}

		err = decodeStream(resp.Body, c.log, func(delta string) bool {
			select {
			case chunks <- delta:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errs <- err
			return
		}

		c.log.Debug("stream finished",
			zap.String("model", c.Model),
			zap.Duration("elapsed", time.Since(start)))
	}()

	return chunks, errs
}

// Generate runs a streaming exchange to completion and returns the
// accumulated reply. Used by the background worker, which has no client to
// relay deltas to.
func (c *Client) Generate(ctx context.Context, contents []Content) (string, error) {
	chunks, errs := c.StreamGenerate(ctx, contents)

	var b strings.Builder
	for delta := range chunks {
		b.WriteString(delta)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
