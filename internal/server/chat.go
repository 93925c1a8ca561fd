// ABOUTME: Chat proxy endpoints relaying agent runtime streams to clients
// ABOUTME: Every chunk passes the sensitive-content filter before leaving the server

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/stream"
	"github.com/lanternops/agentadmin/internal/upstream"
)

type chatRequest struct {
	Query          string         `json:"query" validate:"required"`
	ConversationID string         `json:"conversation_id"`
	Inputs         map[string]any `json:"inputs"`
}

// handleChatStream proxies a streaming chat to the agent runtime,
// relaying SSE chunks through the content filter. Chunks the filter
// suppresses never reach the client; a sensitive query short-circuits
// with a synthetic error event before any upstream call is made.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	agentID, _ := strconv.ParseInt(chi.URLParam(r, "agent_id"), 10, 64)
	var req chatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		failStore(w, err)
		return
	}
	if !agent.IsActive {
		fail(w, http.StatusBadRequest, "agent is inactive")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if s.filter.Enabled() {
		if hit, word := s.filter.Contains(req.Query); hit {
			s.logger.Warn("sensitive query blocked", "agent_id", agentID, "word", word)
			s.writeSyntheticError(w, flusher, s.filter.ResponseMessage())
			return
		}
	}

	id, _ := auth.IdentityFromContext(r.Context())
	lines, err := s.agents.Stream(r.Context(), agent, upstream.ChatRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		User:           id.Username,
		Inputs:         req.Inputs,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrAgentUnavailable) {
			s.writeSyntheticError(w, flusher, "agent is unavailable")
			return
		}
		s.writeSyntheticError(w, flusher, "chat failed")
		return
	}

	for line := range lines {
		out, ok := s.filter.FilterChunk(line)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\n\n", out)
		flusher.Flush()
	}
}

// writeSyntheticError emits a minimal SSE error event followed by the
// termination sentinel so stream consumers always see a complete stream.
func (s *Server) writeSyntheticError(w http.ResponseWriter, flusher http.Flusher, msg string) {
	payload, _ := json.Marshal(stream.Event{Event: stream.EventError, Answer: msg})
	fmt.Fprintf(w, "data: %s\n\n", payload)
	fmt.Fprintf(w, "data: %s\n\n", stream.DoneSentinel)
	flusher.Flush()
}

type blockingChatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// handleChatBlocking runs the full streaming exchange server-side and
// condenses it into a single answer: the terminal workflow event when
// the runtime emits one, the accumulated text otherwise.
func (s *Server) handleChatBlocking(w http.ResponseWriter, r *http.Request) {
	agentID, _ := strconv.ParseInt(chi.URLParam(r, "agent_id"), 10, 64)
	var req chatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		failStore(w, err)
		return
	}
	if !agent.IsActive {
		fail(w, http.StatusBadRequest, "agent is inactive")
		return
	}

	if s.filter.Enabled() {
		if hit, word := s.filter.Contains(req.Query); hit {
			s.logger.Warn("sensitive query blocked", "agent_id", agentID, "word", word)
			success(w, blockingChatResponse{Answer: s.filter.ResponseMessage()})
			return
		}
	}

	id, _ := auth.IdentityFromContext(r.Context())
	chunks, err := s.agents.Collect(r.Context(), agent, upstream.ChatRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		User:           id.Username,
		Inputs:         req.Inputs,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrAgentUnavailable) {
			fail(w, http.StatusBadGateway, "agent is unavailable")
			return
		}
		fail(w, http.StatusInternalServerError, "chat failed")
		return
	}

	resp := condenseChunks(chunks)
	resp.Answer = s.filter.FilterPlain(resp.Answer)
	success(w, resp)
}

// condenseChunks turns a finished chunk sequence into the blocking
// response. The terminal event's outputs win; without one the answer is
// accumulated from the incremental events.
func condenseChunks(chunks []string) blockingChatResponse {
	resp := blockingChatResponse{}
	if final := stream.ExtractFinalEvent(chunks); final != nil {
		resp.ConversationID = final.ConversationID
		resp.MessageID = final.MessageID
		if final.Data != nil {
			if final.Data.Outputs != nil && final.Data.Outputs.Answer != "" {
				resp.Answer = final.Data.Outputs.Answer
				return resp
			}
			if final.Data.Answer != "" {
				resp.Answer = final.Data.Answer
				return resp
			}
		}
	}
	resp.Answer = stream.AccumulateText(chunks)
	return resp
}
