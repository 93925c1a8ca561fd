// ABOUTME: Tests for the chat proxy endpoints against a fake agent runtime
// ABOUTME: Covers stream relaying, chunk suppression, blocked queries, and blocking condensation

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternops/agentadmin/internal/filter"
	"github.com/lanternops/agentadmin/internal/store"
)

// fakeRuntime serves a fixed SSE script on /chat-messages and counts hits.
func fakeRuntime(t *testing.T, lines []string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat-messages", r.URL.Path)
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func registerAgent(t *testing.T, e *testEnv, endpoint string) *store.Agent {
	t.Helper()
	agent := &store.Agent{Name: "runtime", Endpoint: endpoint, IsActive: true}
	require.NoError(t, e.mem.CreateAgent(context.Background(), agent))
	return agent
}

func TestChatStreamRelaysAndFilters(t *testing.T) {
	e := newTestEnv(t)
	ts, _ := fakeRuntime(t, []string{
		`data: {"event":"agent_message","answer":"hello"}`,
		`data: {"event":"agent_message","answer":"this is forbidden text"}`,
		`data: {"event":"agent_message","answer":"world"}`,
		`data: [DONE]`,
	})
	agent := registerAgent(t, e, ts.URL)
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat", agent.ID), token,
		map[string]string{"query": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "hello")
	assert.Contains(t, body, "world")
	assert.Contains(t, body, "[DONE]")
	assert.NotContains(t, body, "forbidden")
}

func TestChatStreamBlockedQuerySkipsUpstream(t *testing.T) {
	e := newTestEnv(t)
	ts, hits := fakeRuntime(t, []string{`data: [DONE]`})
	agent := registerAgent(t, e, ts.URL)
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat", agent.ID), token,
		map[string]string{"query": "tell me something forbidden"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"event":"error"`)
	assert.Contains(t, body, filter.DefaultResponseMessage)
	assert.Contains(t, body, "[DONE]")
	assert.Zero(t, hits.Load(), "upstream must not be called for a blocked query")
}

func TestChatStreamInactiveAgent(t *testing.T) {
	e := newTestEnv(t)
	agent := &store.Agent{Name: "down", Endpoint: "http://127.0.0.1:1", IsActive: false}
	require.NoError(t, e.mem.CreateAgent(context.Background(), agent))
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat", agent.ID), token,
		map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatBlockingUsesFinalEvent(t *testing.T) {
	e := newTestEnv(t)
	ts, _ := fakeRuntime(t, []string{
		`data: {"event":"text_chunk","data":{"text":"partial"}}`,
		`data: {"event":"workflow_finished","conversation_id":"c1","message_id":"m1","data":{"outputs":{"answer":"final answer"}}}`,
		`data: [DONE]`,
	})
	agent := registerAgent(t, e, ts.URL)
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat/blocking", agent.ID), token,
		map[string]string{"query": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data blockingChatResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "final answer", body.Data.Answer)
	assert.Equal(t, "c1", body.Data.ConversationID)
	assert.Equal(t, "m1", body.Data.MessageID)
}

func TestChatBlockingAccumulatesWithoutFinalEvent(t *testing.T) {
	e := newTestEnv(t)
	ts, _ := fakeRuntime(t, []string{
		`data: {"event":"text_chunk","data":{"text":"hello "}}`,
		`data: {"event":"text_chunk","data":{"text":"world"}}`,
		`data: [DONE]`,
	})
	agent := registerAgent(t, e, ts.URL)
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat/blocking", agent.ID), token,
		map[string]string{"query": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data blockingChatResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hello world", body.Data.Answer)
}

func TestChatBlockingFiltersAnswer(t *testing.T) {
	e := newTestEnv(t)
	ts, _ := fakeRuntime(t, []string{
		`data: {"event":"workflow_finished","data":{"outputs":{"answer":"a forbidden answer"}}}`,
		`data: [DONE]`,
	})
	agent := registerAgent(t, e, ts.URL)
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat/blocking", agent.ID), token,
		map[string]string{"query": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data blockingChatResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, filter.DefaultResponseMessage, body.Data.Answer)
}

func TestChatBlockingUnreachableRuntime(t *testing.T) {
	e := newTestEnv(t)
	agent := registerAgent(t, e, "http://127.0.0.1:1")
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat/blocking", agent.ID), token,
		map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatMissingQuery(t *testing.T) {
	e := newTestEnv(t)
	agent := registerAgent(t, e, "http://127.0.0.1:1")
	token := e.login(t, "admin")

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/agent/%d/chat", agent.ID), token,
		map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
