package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamGenerate_DeliversAllChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "test-app", r.Header.Get("X-App-Id"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, record("Hello"))
		fmt.Fprint(w, record(" there"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-app", "", zap.NewNop())
	chunks, errs := c.StreamGenerate(context.Background(), FormatTurns([]Turn{{Role: "user", Content: "hi"}}))

	var got string
	for delta := range chunks {
		got += delta
	}
	require.NoError(t, <-errs)
	require.Equal(t, "Hello there", got)
}

func TestStreamGenerate_ErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", zap.NewNop())
	chunks, errs := c.StreamGenerate(context.Background(), nil)

	for range chunks {
		t.Fatal("no chunks expected on error status")
	}
	err := <-errs
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestStreamGenerate_CancellationIsSilent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, record("first"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "", "", zap.NewNop())
	chunks, errs := c.StreamGenerate(ctx, nil)

	delta, ok := <-chunks
	require.True(t, ok)
	require.Equal(t, "first", delta)

	cancel()

	for range chunks {
		// drain; the channel must close without further deltas
		t.Fatal("no chunks expected after cancellation")
	}
	require.NoError(t, <-errs)
}

func TestGenerate_AccumulatesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, record("a"))
		fmt.Fprint(w, record("b"))
		fmt.Fprint(w, record("c"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", zap.NewNop())
	reply, err := c.Generate(context.Background(), nil)

	require.NoError(t, err)
	require.Equal(t, "abc", reply)
}

func TestGenerate_ContextCancelledBeforeRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("http://127.0.0.1:0", "", "", zap.NewNop())
	_, err := c.Generate(ctx, nil)

	require.ErrorIs(t, err, context.Canceled)
}
