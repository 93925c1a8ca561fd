// ABOUTME: Parsing of server-sent-event chunks emitted by the agent runtime
// ABOUTME: Extracts structured events, terminal results, and accumulated text

package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// dataPrefix frames every payload line in the upstream protocol.
const dataPrefix = "data:"

// DoneSentinel terminates a streamed response.
const DoneSentinel = "[DONE]"

// Well-known event types carried in the "event" field.
const (
	EventTextChunk        = "text_chunk"
	EventAgentMessage     = "agent_message"
	EventMessage          = "message"
	EventWorkflowFinished = "workflow_finished"
	EventError            = "error"
)

// Event is one decoded protocol event. Unknown fields are ignored; absent
// fields stay zero-valued.
type Event struct {
	Event          string     `json:"event,omitempty"`
	Answer         string     `json:"answer,omitempty"`
	Text           string     `json:"text,omitempty"`
	Content        any        `json:"content,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	WorkflowRunID  string     `json:"workflow_run_id,omitempty"`
	Data           *EventData `json:"data,omitempty"`
}

// EventData is the nested payload carried by workflow-style events.
type EventData struct {
	Text    string        `json:"text,omitempty"`
	Answer  string        `json:"answer,omitempty"`
	Outputs *EventOutputs `json:"outputs,omitempty"`
}

// EventOutputs holds the final outputs of a finished workflow run.
type EventOutputs struct {
	Answer string `json:"answer,omitempty"`
}

// ContentString renders the free-form content field as text. Returns the
// empty string when no content is present.
func (e *Event) ContentString() string {
	if e.Content == nil {
		return ""
	}
	if s, ok := e.Content.(string); ok {
		return s
	}
	return fmt.Sprint(e.Content)
}

// Payload strips the "data:" framing from a chunk and returns the trimmed
// payload. The second return is false when the chunk does not carry the
// framing prefix at all.
func Payload(chunk string) (string, bool) {
	if !strings.HasPrefix(chunk, dataPrefix) {
		return "", false
	}
	return strings.TrimSpace(chunk[len(dataPrefix):]), true
}

// IsDone reports whether a payload is the stream-termination sentinel.
func IsDone(payload string) bool {
	return payload == DoneSentinel
}

// ParseEvent decodes a single chunk into an Event. Chunks without the
// "data:" framing, the [DONE] sentinel, empty payloads, and payloads that
// are not valid JSON all return (nil, false).
func ParseEvent(chunk string) (*Event, bool) {
	payload, ok := Payload(chunk)
	if !ok || payload == "" || IsDone(payload) {
		return nil, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}

// ExtractFinalEvent scans the chunk sequence in reverse for the terminal
// workflow_finished event and returns it, or nil when the stream never
// finished. The terminal event sits at or near the end of a well-formed
// stream, so the reverse scan usually inspects a constant number of chunks.
// Malformed chunks are skipped.
func ExtractFinalEvent(chunks []string) *Event {
	for i := len(chunks) - 1; i >= 0; i-- {
		ev, ok := ParseEvent(chunks[i])
		if !ok {
			continue
		}
		if ev.Event == EventWorkflowFinished {
			return ev
		}
	}
	return nil
}

// AccumulateText folds a chunk sequence into the response text. Incremental
// text_chunk and agent_message fragments append in emission order; a
// "message" event carrying a full answer replaces everything accumulated so
// far, so the last full answer wins. Malformed chunks are skipped.
func AccumulateText(chunks []string) string {
	var b strings.Builder
	for _, chunk := range chunks {
		ev, ok := ParseEvent(chunk)
		if !ok {
			continue
		}
		switch ev.Event {
		case EventTextChunk:
			if ev.Data != nil && ev.Data.Text != "" {
				b.WriteString(ev.Data.Text)
			}
		case EventAgentMessage:
			if ev.Data != nil && ev.Data.Answer != "" {
				b.WriteString(ev.Data.Answer)
			}
		case EventMessage:
			if ev.Data == nil {
				continue
			}
			if ev.Data.Outputs != nil && ev.Data.Outputs.Answer != "" {
				b.Reset()
				b.WriteString(ev.Data.Outputs.Answer)
			} else if ev.Data.Answer != "" {
				b.Reset()
				b.WriteString(ev.Data.Answer)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
