// Package filter screens outbound content for disallowed substrings.
//
// A single Engine is shared by all requests. Plain text is filtered by
// whole-text replacement; streamed chunks are suppressed outright, because
// a trigger word may only be recognizable once fragments are assembled.
// The word set is immutable between Reload calls, which swap in a freshly
// built matcher atomically. Matcher construction failures disable detection
// (fail-open) instead of rejecting traffic or crashing the host.
package filter
