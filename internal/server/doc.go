// Package server exposes the administrative JSON API under /api/v1.
//
// Every response uses the {"code", "msg", "data"} envelope; list
// endpoints add total/page/page_size. The middleware chain is CORS,
// request logging, bearer authentication, audit recording, then the
// role-based permission check; credential endpoints sit outside the
// authenticated group behind per-IP rate limits.
//
// Chat endpoints proxy server-sent-event streams from agent runtimes
// through the sensitive-content filter; the blocking variant condenses
// a stream into one answer via the stream package.
package server
