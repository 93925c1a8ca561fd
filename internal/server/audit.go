// ABOUTME: Audit trail middleware and listing endpoint
// ABOUTME: Records one entry per authenticated API request after the response

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

// auditMiddleware records who did what. It runs inside the auth
// middleware so an identity is always present. The insert happens after
// the response with a detached context so a client disconnect can't
// drop the entry.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			return
		}

		entry := &store.AuditLog{
			UserID:    id.ID,
			Username:  id.Username,
			Module:    moduleOf(r.URL.Path),
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    rec.status,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err := s.store.InsertAuditLog(context.WithoutCancel(r.Context()), entry); err != nil {
			s.logger.Warn("audit insert failed", "error", err)
		}
	})
}

type auditLogResponse struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Module    string    `json:"module"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleAuditLogList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditLogFilter{
		Page:     queryPage(r),
		Username: q.Get("username"),
		Module:   q.Get("module"),
		Method:   q.Get("method"),
		Path:     q.Get("path"),
	}
	entries, total, err := s.store.ListAuditLogs(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}
	out := make([]auditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditLogResponse{
			ID: e.ID, UserID: e.UserID, Username: e.Username, Module: e.Module,
			Method: e.Method, Path: e.Path, Status: e.Status,
			LatencyMS: e.LatencyMS, CreatedAt: e.CreatedAt,
		})
	}
	successPage(w, out, total, filter.Page)
}
