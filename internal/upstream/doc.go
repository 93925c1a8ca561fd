// Package upstream connects to registered agent runtimes. Chat exchanges
// are server-sent event streams; the client hands raw event lines to the
// HTTP layer, which filters and relays them to the caller. The stream
// package owns the event payload format.
package upstream
