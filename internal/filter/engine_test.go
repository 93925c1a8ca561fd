// ABOUTME: Tests for sensitive-word detection, chunk suppression, and reload
// ABOUTME: Includes a concurrent reload stress test for the atomic matcher swap

package filter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, words ...string) *Engine {
	t.Helper()
	return NewEngine(Config{
		Enabled:         true,
		Words:           words,
		ResponseMessage: "content withheld",
	}, nil)
}

func TestContains(t *testing.T) {
	e := newTestEngine(t, "forbidden")

	hit, word := e.Contains("hello world")
	assert.False(t, hit)
	assert.Equal(t, "", word)

	hit, word = e.Contains("this is forbidden text")
	assert.True(t, hit)
	assert.Equal(t, "forbidden", word)
}

func TestContains_CaseInsensitive(t *testing.T) {
	e := newTestEngine(t, "Forbidden")

	hit, word := e.Contains("absolutely FORBIDDEN")
	assert.True(t, hit)
	assert.Equal(t, "forbidden", word)
}

func TestContains_Disabled(t *testing.T) {
	e := NewEngine(Config{Enabled: false, Words: []string{"forbidden"}}, nil)
	require.False(t, e.Enabled())

	hit, _ := e.Contains("forbidden")
	assert.False(t, hit)
}

func TestFilterPlain(t *testing.T) {
	e := newTestEngine(t, "forbidden")

	assert.Equal(t, "safe text", e.FilterPlain("safe text"))
	assert.Equal(t, "content withheld", e.FilterPlain("very forbidden"))
}

func TestFilterChunk(t *testing.T) {
	e := newTestEngine(t, "forbidden")

	tests := []struct {
		name  string
		chunk string
		pass  bool
	}{
		{
			name:  "clean answer passes",
			chunk: `data: {"answer": "all good"}`,
			pass:  true,
		},
		{
			name:  "sensitive answer suppressed",
			chunk: `data: {"answer": "forbidden content"}`,
			pass:  false,
		},
		{
			name:  "sensitive text field suppressed",
			chunk: `data: {"text": "forbidden"}`,
			pass:  false,
		},
		{
			name:  "sensitive content field suppressed",
			chunk: `data: {"content": "forbidden"}`,
			pass:  false,
		},
		{
			name:  "done sentinel passes",
			chunk: `data: [DONE]`,
			pass:  true,
		},
		{
			name:  "non-data line passes",
			chunk: `event: ping`,
			pass:  true,
		},
		{
			name:  "invalid json falls back to raw scan",
			chunk: `data: {forbidden`,
			pass:  false,
		},
		{
			name:  "invalid clean json passes",
			chunk: `data: {not json but harmless`,
			pass:  true,
		},
		{
			name:  "event without text passes",
			chunk: `data: {"event": "workflow_started"}`,
			pass:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.FilterChunk(tt.chunk)
			assert.Equal(t, tt.pass, ok)
			if tt.pass {
				assert.Equal(t, tt.chunk, got)
			} else {
				assert.Equal(t, "", got)
			}
		})
	}
}

func TestFilterChunk_DisabledPassesEverything(t *testing.T) {
	e := NewEngine(Config{Enabled: false}, nil)

	chunk := `data: {"answer": "anything at all"}`
	got, ok := e.FilterChunk(chunk)
	assert.True(t, ok)
	assert.Equal(t, chunk, got)
}

func TestReload(t *testing.T) {
	e := newTestEngine(t, "old")

	hit, _ := e.Contains("old word")
	require.True(t, hit)

	require.True(t, e.Reload([]string{"new"}))

	hit, _ = e.Contains("old word")
	assert.False(t, hit)
	hit, word := e.Contains("a new word")
	assert.True(t, hit)
	assert.Equal(t, "new", word)
}

func TestReload_NormalizesWords(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.Reload([]string{"  Mixed Case  ", "", "dup", "dup"}))

	hit, word := e.Contains("some mixed case here")
	assert.True(t, hit)
	assert.Equal(t, "mixed case", word)
}

func TestReload_DisabledEngineStaysDisabled(t *testing.T) {
	e := NewEngine(Config{Enabled: false, Words: []string{"forbidden"}}, nil)
	require.False(t, e.Enabled())

	assert.False(t, e.Reload([]string{"forbidden"}))
	assert.False(t, e.Enabled())

	hit, _ := e.Contains("forbidden text")
	assert.False(t, hit)
}

func TestReload_ConcurrentReaders(t *testing.T) {
	e := newTestEngine(t, "w0")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must only ever observe a fully built matcher: every hit has to
	// return a word from one generation of the set.
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				hit, word := e.Contains("probe w0 w1 w2 w3")
				if hit && word == "" {
					t.Error("hit with empty word implies torn matcher state")
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		require.True(t, e.Reload([]string{fmt.Sprintf("w%d", i%4)}))
	}
	close(stop)
	wg.Wait()
}
