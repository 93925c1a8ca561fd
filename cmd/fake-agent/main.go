// ABOUTME: Minimal fake agent runtime for E2E testing — serves the SSE chat protocol and echoes queries.
// ABOUTME: Usage: fake-agent [-addr localhost:8081] [-delay 50ms]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lanternops/agentadmin/internal/stream"
)

func main() {
	addr := flag.String("addr", "localhost:8081", "listen address")
	delay := flag.Duration("delay", 50*time.Millisecond, "delay between chunks to simulate streaming")
	flag.Parse()

	http.HandleFunc("/chat-messages", func(w http.ResponseWriter, r *http.Request) {
		handleChat(w, r, *delay)
	})

	log.Printf("fake agent listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

type chatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	User           string `json:"user"`
}

func handleChat(w http.ResponseWriter, r *http.Request, delay time.Duration) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	log.Printf("received query from %q: %s", req.User, req.Query)

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	messageID := uuid.NewString()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	reply := echoReply(req.Query)

	// Stream the reply word by word, then close with the terminal event.
	var emit = func(ev stream.Event) {
		payload, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	for _, word := range strings.SplitAfter(reply, " ") {
		emit(stream.Event{
			Event:          stream.EventTextChunk,
			ConversationID: conversationID,
			MessageID:      messageID,
			Data:           &stream.EventData{Text: word},
		})
		time.Sleep(delay)
	}

	emit(stream.Event{
		Event:          stream.EventWorkflowFinished,
		ConversationID: conversationID,
		MessageID:      messageID,
		Data:           &stream.EventData{Outputs: &stream.EventOutputs{Answer: reply}},
	})
	fmt.Fprintf(w, "data: %s\n\n", stream.DoneSentinel)
	flusher.Flush()
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
