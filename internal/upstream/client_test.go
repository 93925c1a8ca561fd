// ABOUTME: Tests for the agent runtime client
// ABOUTME: Uses httptest servers emitting SSE lines

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternops/agentadmin/internal/store"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamRelaysLines(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"event": "text_chunk", "data": {"text": "hello"}}`,
		`data: {"event": "workflow_finished", "data": {"outputs": {"answer": "hello world"}}}`,
		`data: [DONE]`,
	})

	client := NewClient(0, nil)
	agent := &store.Agent{ID: 1, Name: "test", Endpoint: srv.URL}

	lines, err := client.Stream(context.Background(), agent, ChatRequest{Query: "hi"})
	require.NoError(t, err)

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "text_chunk")
	assert.Equal(t, "data: [DONE]", got[2])
}

func TestStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(0, nil)
	agent := &store.Agent{ID: 1, Endpoint: srv.URL}

	_, err := client.Stream(context.Background(), agent, ChatRequest{Query: "hi"})
	assert.ErrorIs(t, err, ErrAgentUnavailable)
}

func TestStreamUnreachableEndpoint(t *testing.T) {
	client := NewClient(time.Second, nil)
	agent := &store.Agent{ID: 1, Endpoint: "http://127.0.0.1:1"}

	_, err := client.Stream(context.Background(), agent, ChatRequest{Query: "hi"})
	assert.ErrorIs(t, err, ErrAgentUnavailable)
}

func TestCollect(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"event": "message", "answer": "partial"}`,
		`data: [DONE]`,
	})

	client := NewClient(0, nil)
	agent := &store.Agent{ID: 1, Endpoint: srv.URL}

	got, err := client.Collect(context.Background(), agent, ChatRequest{Query: "hi"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStreamContextCancel(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\": \"text_chunk\"}\n\n")
		w.(http.Flusher).Flush()
		<-blocked
	}))
	t.Cleanup(func() {
		close(blocked)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(0, nil)
	agent := &store.Agent{ID: 1, Endpoint: srv.URL}

	lines, err := client.Stream(ctx, agent, ChatRequest{Query: "hi"})
	require.NoError(t, err)

	<-lines // first line arrives
	cancel()

	// channel must close once the context is gone
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel never closed after cancel")
		}
	}
}
