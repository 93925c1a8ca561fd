// ABOUTME: Tests for the bearer-token authentication middleware
// ABOUTME: Covers header extraction, token class rejection, and inactive users

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternops/agentadmin/internal/store"
)

func newAuthedHandler(t *testing.T) (*store.MemoryStore, *Codec, http.Handler, *Identity) {
	t.Helper()
	mem := store.NewMemoryStore()
	codec := NewCodec([]byte("test-secret"), 0, 0)

	var captured Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		captured = *id
		w.WriteHeader(http.StatusOK)
	})
	return mem, codec, Middleware(mem, codec)(inner), &captured
}

func TestMiddlewareAcceptsAccessToken(t *testing.T) {
	mem, codec, handler, captured := newAuthedHandler(t)

	user := &store.User{Username: "alice", PasswordHash: "h", IsActive: true, IsSuperuser: true}
	require.NoError(t, mem.CreateUser(context.Background(), user))

	access, _, err := codec.IssuePair(user.ID, user.Username, user.IsSuperuser)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/base/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, captured.ID)
	assert.Equal(t, "alice", captured.Username)
	assert.True(t, captured.IsSuperuser)
}

func TestMiddlewareAcceptsLegacyTokenHeader(t *testing.T) {
	mem, codec, handler, _ := newAuthedHandler(t)

	user := &store.User{Username: "bob", PasswordHash: "h", IsActive: true}
	require.NoError(t, mem.CreateUser(context.Background(), user))
	access, _, err := codec.IssuePair(user.ID, user.Username, false)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("token", access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsRefreshToken(t *testing.T) {
	mem, codec, handler, _ := newAuthedHandler(t)

	user := &store.User{Username: "carol", PasswordHash: "h", IsActive: true}
	require.NoError(t, mem.CreateUser(context.Background(), user))
	_, refresh, err := codec.IssuePair(user.ID, user.Username, false)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "wrong token class", envelopeMsg(t, rec))
}

func TestMiddlewareRejectsInactiveUser(t *testing.T) {
	mem, codec, handler, _ := newAuthedHandler(t)

	user := &store.User{Username: "dora", PasswordHash: "h", IsActive: true}
	require.NoError(t, mem.CreateUser(context.Background(), user))
	access, _, err := codec.IssuePair(user.ID, user.Username, false)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, mem.UpdateUser(context.Background(), user))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user is inactive", envelopeMsg(t, rec))
}

func TestMiddlewareRejectsDeletedUser(t *testing.T) {
	mem, codec, handler, _ := newAuthedHandler(t)

	user := &store.User{Username: "eve", PasswordHash: "h", IsActive: true}
	require.NoError(t, mem.CreateUser(context.Background(), user))
	access, _, err := codec.IssuePair(user.ID, user.Username, false)
	require.NoError(t, err)
	require.NoError(t, mem.DeleteUser(context.Background(), user.ID))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareHeaderFailures(t *testing.T) {
	_, _, handler, _ := newAuthedHandler(t)

	tests := []struct {
		name   string
		header string
		value  string
		msg    string
	}{
		{"missing header", "", "", "missing authorization header"},
		{"not bearer", "Authorization", "Basic abc", "invalid authorization header format"},
		{"empty bearer", "Authorization", "Bearer ", "empty token"},
		{"garbage token", "Authorization", "Bearer not.a.jwt", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.msg, envelopeMsg(t, rec))
		})
	}
}

func envelopeMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusUnauthorized, body.Code)
	return body.Msg
}
