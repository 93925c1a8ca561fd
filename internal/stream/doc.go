// Package stream decodes the append-only chunk protocol produced by the
// agent runtime. Each chunk is a text line of the form "data: <json>" with
// the literal "data: [DONE]" sentinel closing the stream.
//
// The package is purely functional: it holds no state and never fails on
// malformed input. Chunks that cannot be decoded are treated as carrying no
// signal and skipped, so a single corrupt chunk never aborts processing of
// the rest of a stream.
package stream
