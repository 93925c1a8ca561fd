// ABOUTME: HTTP client for agent runtime chat endpoints
// ABOUTME: Relays server-sent event lines from the runtime without reframing them

package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lanternops/agentadmin/internal/store"
)

// ErrAgentUnavailable is returned when the agent runtime cannot be
// reached or answers with a non-success status.
var ErrAgentUnavailable = errors.New("agent unavailable")

const (
	// DefaultTimeout bounds a whole streaming exchange with a runtime.
	DefaultTimeout = 5 * time.Minute

	// Maximum size of a single SSE line from a runtime. Agent answers
	// arrive chunked, so individual lines stay small; this bound guards
	// against a misbehaving runtime.
	maxLineSize = 1 << 20
)

// ChatRequest is the payload forwarded to an agent runtime.
type ChatRequest struct {
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id,omitempty"`
	User           string         `json:"user,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Stream         bool           `json:"stream"`
}

// Client talks to agent runtimes over HTTP.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewClient creates a runtime client. A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		// No client-level timeout: streams are bounded per request
		// through the context so long chats aren't cut off mid-line.
		http:    &http.Client{},
		logger:  logger.With("component", "upstream"),
		timeout: timeout,
	}
}

// Stream opens a chat with the agent runtime and delivers raw SSE lines
// on the returned channel. Blank keep-alive lines are dropped; everything
// else (data: payloads, the [DONE] sentinel) passes through verbatim.
// The channel closes when the runtime ends the stream, errors, or the
// context is cancelled.
func (c *Client) Stream(ctx context.Context, agent *store.Agent, req ChatRequest) (<-chan string, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL(agent.Endpoint), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		c.logger.Warn("agent request failed", "agent_id", agent.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		c.logger.Warn("agent returned error status", "agent_id", agent.ID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrAgentUnavailable, resp.StatusCode)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		defer cancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn("agent stream ended abnormally", "agent_id", agent.ID, "error", err)
		}
	}()

	return lines, nil
}

// Collect runs a full streaming exchange and returns every line. Used by
// the blocking chat endpoint, which condenses the stream into one answer.
func (c *Client) Collect(ctx context.Context, agent *store.Agent, req ChatRequest) ([]string, error) {
	lines, err := c.Stream(ctx, agent, req)
	if err != nil {
		return nil, err
	}
	var all []string
	for line := range lines {
		all = append(all, line)
	}
	if ctx.Err() != nil {
		return all, ctx.Err()
	}
	return all, nil
}

// Ping checks whether a runtime endpoint is reachable.
func (c *Client) Ping(ctx context.Context, agent *store.Agent) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(agent.Endpoint, "/"), nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

func chatURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/chat-messages"
}
