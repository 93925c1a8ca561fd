// ABOUTME: Multi-pattern sensitive-word detection over plain text and streamed chunks
// ABOUTME: Aho-Corasick matcher behind an atomic-swap handle with fail-open reload

package filter

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cloudflare/ahocorasick"

	"github.com/lanternops/agentadmin/internal/stream"
)

// DefaultResponseMessage is returned in place of text that triggered the
// filter when no message is configured.
const DefaultResponseMessage = "The response contains restricted content and has been withheld."

// Config describes the word set and policy for an Engine.
type Config struct {
	Enabled         bool
	Words           []string
	ResponseMessage string
}

// matcher pairs the compiled automaton with the normalized word list it was
// built from, so a hit index can be mapped back to the trigger word. The
// pair is installed and replaced as a unit.
type matcher struct {
	ac    *ahocorasick.Matcher
	words []string
}

// Engine detects disallowed substrings in text and in streamed chunks.
// The matcher is shared read-only across requests; Reload is the only
// mutator and installs a fresh matcher with an atomic pointer swap, so
// concurrent readers always observe a fully built word set.
type Engine struct {
	logger     *slog.Logger
	response   string
	configured bool
	enabled    atomic.Bool
	current    atomic.Pointer[matcher]
}

// NewEngine builds an Engine from the given configuration. A construction
// failure disables detection rather than failing the caller: the filter is
// an overlay on response delivery, not a gate on process startup.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	response := cfg.ResponseMessage
	if response == "" {
		response = DefaultResponseMessage
	}

	e := &Engine{
		logger:     logger.With("component", "filter"),
		response:   response,
		configured: cfg.Enabled,
	}

	if !cfg.Enabled {
		e.logger.Info("sensitive-word filtering disabled")
		return e
	}

	m, err := buildMatcher(cfg.Words)
	if err != nil {
		e.logger.Error("building sensitive-word matcher, detection disabled", "error", err)
		return e
	}
	e.current.Store(m)
	e.enabled.Store(true)
	e.logger.Info("sensitive-word filter ready", "words", len(m.words))
	return e
}

// Enabled reports whether detection is active.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// ResponseMessage returns the fixed replacement text used when content is
// withheld.
func (e *Engine) ResponseMessage() string {
	return e.response
}

// Contains reports whether text holds any trigger word, returning the first
// word found. It stops at the first hit; the full match set is never
// enumerated. Matching is case-insensitive.
func (e *Engine) Contains(text string) (bool, string) {
	if !e.enabled.Load() || text == "" {
		return false, ""
	}
	m := e.current.Load()
	if m == nil {
		return false, ""
	}
	hits := m.ac.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return false, ""
	}
	word := m.words[hits[0]]
	e.logger.Warn("sensitive word detected", "word", word)
	return true, word
}

// FilterPlain returns the configured replacement message when text contains
// a trigger word, and the input unchanged otherwise. Replacement is
// whole-text: partial redaction would leave the surrounding context intact.
func (e *Engine) FilterPlain(text string) string {
	if hit, _ := e.Contains(text); hit {
		return e.response
	}
	return text
}

// FilterChunk inspects one streamed chunk. The second return is false when
// the chunk must be suppressed entirely: redacting inside a streamed
// fragment is unsafe because a trigger word may span chunk boundaries.
// Non-conforming chunks and the [DONE] sentinel pass through unchanged, and
// a payload that is not valid JSON degrades to a raw-text scan.
func (e *Engine) FilterChunk(chunk string) (string, bool) {
	if !e.enabled.Load() || chunk == "" {
		return chunk, true
	}

	payload, ok := stream.Payload(chunk)
	if !ok || payload == "" || stream.IsDone(payload) {
		return chunk, true
	}

	ev, ok := stream.ParseEvent(chunk)
	if !ok {
		// Not JSON; scan the raw payload instead.
		if hit, word := e.Contains(payload); hit {
			e.logger.Warn("suppressing raw stream chunk", "word", word)
			return "", false
		}
		return chunk, true
	}

	text := ev.Answer + ev.Text + ev.ContentString()
	if text == "" {
		return chunk, true
	}
	if hit, word := e.Contains(text); hit {
		e.logger.Warn("suppressing stream chunk", "word", word, "event", ev.Event)
		return "", false
	}
	return chunk, true
}

// Reload rebuilds the matcher from a new word set and swaps it in
// atomically. On failure detection is disabled (fail-open) and false is
// returned; the engine keeps serving rather than taking the host down.
// An engine disabled by configuration stays disabled: a reload never
// turns detection on.
func (e *Engine) Reload(words []string) bool {
	if !e.configured {
		return false
	}
	m, err := buildMatcher(words)
	if err != nil {
		e.enabled.Store(false)
		e.logger.Error("rebuilding sensitive-word matcher, detection disabled", "error", err)
		return false
	}
	e.current.Store(m)
	e.enabled.Store(true)
	e.logger.Info("sensitive-word filter reloaded", "words", len(m.words))
	return true
}

// buildMatcher normalizes the word set and compiles the automaton. A panic
// inside the automaton library is surfaced as an error so the caller can
// fail open.
func buildMatcher(words []string) (m *matcher, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("compiling matcher: %v", r)
		}
	}()

	normalized := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		normalized = append(normalized, w)
	}

	return &matcher{
		ac:    ahocorasick.NewStringMatcher(normalized),
		words: normalized,
	}, nil
}
