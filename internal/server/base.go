// ABOUTME: Base endpoints: login, token refresh, self-service info, health
// ABOUTME: Credential endpoints sit outside the auth middleware and are rate limited

package server

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
}

// handleLogin verifies credentials and issues a token pair. Unknown
// usernames, wrong passwords, and inactive accounts all answer the same
// way so the endpoint doesn't confirm account existence.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("login lookup failed", "error", err)
		}
		fail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		fail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !user.IsActive {
		fail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	access, refresh, err := s.codec.IssuePair(user.ID, user.Username, user.IsSuperuser)
	if err != nil {
		s.logger.Error("issuing tokens failed", "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.store.UpdateLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		s.logger.Warn("recording last login failed", "user_id", user.ID, "error", err)
	}

	s.logger.Info("login", "user_id", user.ID, "username", user.Username)
	success(w, tokenResponse{AccessToken: access, RefreshToken: refresh, Username: user.Username})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// handleRefresh exchanges a refresh token for a fresh pair. Access tokens
// are rejected here; the class check is strict in both directions.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	claims, err := s.codec.Verify(req.RefreshToken, auth.TokenClassRefresh)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			fail(w, http.StatusUnauthorized, "token expired")
		case errors.Is(err, auth.ErrWrongTokenClass):
			fail(w, http.StatusUnauthorized, "wrong token class")
		default:
			fail(w, http.StatusUnauthorized, "invalid token")
		}
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		fail(w, http.StatusUnauthorized, "invalid token")
		return
	}

	access, refresh, err := s.codec.IssuePair(user.ID, user.Username, user.IsSuperuser)
	if err != nil {
		s.logger.Error("issuing tokens failed", "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	success(w, tokenResponse{AccessToken: access, RefreshToken: refresh, Username: user.Username})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	success(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	success(w, map[string]string{"version": s.opts.Version})
}

// handleUserInfo returns the authenticated user's profile.
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	user, err := s.store.GetUser(r.Context(), id.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	out, err := s.userOut(r, user)
	if err != nil {
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	success(w, out)
}

// handleUserMenu returns the menu tree visible to the authenticated user:
// everything for superusers, the union of role menu grants otherwise.
func (s *Server) handleUserMenu(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var menus []*store.Menu
	var err error
	if id.IsSuperuser {
		menus, err = s.store.ListMenus(r.Context())
	} else {
		menus, err = s.menusForUser(r, id.ID)
	}
	if err != nil {
		s.logger.Error("resolving user menus failed", "user_id", id.ID, "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	success(w, buildMenuTree(menus))
}

func (s *Server) menusForUser(r *http.Request, userID int64) ([]*store.Menu, error) {
	roles, err := s.store.RolesOfUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var menus []*store.Menu
	for _, role := range roles {
		roleMenus, err := s.store.MenusOfRole(r.Context(), role.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range roleMenus {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			menus = append(menus, m)
		}
	}
	return menus, nil
}

// handleUserAPI returns the (method, path) grants of the authenticated
// user, or every registered route for superusers.
func (s *Server) handleUserAPI(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var refs []store.APIRef
	if id.IsSuperuser {
		routes, _, err := s.store.ListAPIRoutes(r.Context(), store.APIRouteFilter{Page: store.Page{PageSize: 10000}})
		if err != nil {
			fail(w, http.StatusInternalServerError, "internal error")
			return
		}
		for _, route := range routes {
			refs = append(refs, store.APIRef{Method: route.Method, Path: route.Path})
		}
	} else {
		roles, err := s.store.RolesOfUser(r.Context(), id.ID)
		if err != nil {
			fail(w, http.StatusInternalServerError, "internal error")
			return
		}
		seen := make(map[string]bool)
		for _, role := range roles {
			apis, err := s.store.APIsOfRole(r.Context(), role.ID)
			if err != nil {
				fail(w, http.StatusInternalServerError, "internal error")
				return
			}
			for _, api := range apis {
				key := api.Method + " " + api.Path
				if seen[key] {
					continue
				}
				seen[key] = true
				refs = append(refs, store.APIRef{Method: api.Method, Path: api.Path})
			}
		}
	}
	if refs == nil {
		refs = []store.APIRef{}
	}
	success(w, refs)
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// handleUpdatePassword lets a user change their own password after
// confirming the current one.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	var req updatePasswordRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	user, err := s.store.GetUser(r.Context(), id.ID)
	if err != nil {
		failStore(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		fail(w, http.StatusBadRequest, "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.store.SetUserPassword(r.Context(), id.ID, string(hash)); err != nil {
		failStore(w, err)
		return
	}
	s.logger.Info("password updated", "user_id", id.ID)
	success(w, nil)
}
