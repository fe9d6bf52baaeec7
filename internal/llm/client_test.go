package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"TypeScript"},"done":true,"totalDuration":1200}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3")
	result, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "what language?"}}, "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "TypeScript", result.Content)
}

func TestClient_Complete_ModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "nonexistent")
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", Options{})
	assert.Error(t, err)
}

func TestClient_StreamComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"content":"Hello"},"done":false}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"message":{"content":" world"},"done":false}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"message":{"content":""},"done":true,"totalDuration":500}`)
		flusher.Flush()
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3")
	ch, err := c.StreamComplete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", Options{})
	require.NoError(t, err)

	var text string
	var sawDone bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Content
		if chunk.Done {
			sawDone = true
		}
	}
	assert.Equal(t, "Hello world", text)
	assert.True(t, sawDone)
}

func TestClient_StreamComplete_CancellationStopsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			fmt.Fprintln(w, `{"message":{"content":"x"},"done":false}`)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL, "llama3")
	ch, err := c.StreamComplete(ctx, []Message{{Role: "user", Content: "hi"}}, "", Options{})
	require.NoError(t, err)

	<-ch
	cancel()

	var gotErr bool
	for chunk := range ch {
		if chunk.Err != nil {
			gotErr = true
		}
	}
	assert.True(t, gotErr)
}

func TestClient_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3")
	assert.NoError(t, c.TestConnection(context.Background()))
}

func TestClient_TestConnection_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "llama3")
	assert.Error(t, c.TestConnection(context.Background()))
}
