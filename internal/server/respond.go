// ABOUTME: JSON response envelope and request decoding helpers
// ABOUTME: Every endpoint answers {"code", "msg", "data"}; lists add paging fields

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lanternops/agentadmin/internal/store"
)

const maxBodySize = 1 << 20

// envelope is the uniform response shape.
type envelope struct {
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
	Data     any    `json:"data"`
	Total    *int64 `json:"total,omitempty"`
	Page     *int   `json:"page,omitempty"`
	PageSize *int   `json:"page_size,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// success answers 200 with data.
func success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: 200, Msg: "OK", Data: data})
}

// successPage answers 200 with list data plus paging metadata.
func successPage(w http.ResponseWriter, data any, total int64, page store.Page) {
	p, size := page.Normalize()
	writeJSON(w, http.StatusOK, envelope{
		Code: 200, Msg: "OK", Data: data,
		Total: &total, Page: &p, PageSize: &size,
	})
}

// fail answers with an error envelope. The message is client-facing;
// internals never appear here.
func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Code: status, Msg: msg})
}

// failStore maps store errors onto stable client responses.
func failStore(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		fail(w, http.StatusConflict, "already exists")
	case errors.Is(err, store.ErrHasChildren):
		fail(w, http.StatusBadRequest, "has child entries")
	default:
		fail(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads and validates a JSON request body into dst. On failure
// it writes the error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		fail(w, http.StatusBadRequest, "reading request body failed")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fail(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("field %s failed validation (%s)", verrs[0].Field(), verrs[0].Tag()))
		} else {
			fail(w, http.StatusUnprocessableEntity, "request validation failed")
		}
		return false
	}
	return true
}
