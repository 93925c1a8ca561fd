// ABOUTME: User management endpoints
// ABOUTME: CRUD plus role assignment and administrative password resets

package server

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lanternops/agentadmin/internal/store"
)

type roleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	DeptID      int64     `json:"dept_id"`
	LastLogin   *string   `json:"last_login"`
	Roles       []roleRef `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) userOut(r *http.Request, user *store.User) (*userResponse, error) {
	roles, err := s.store.RolesOfUser(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	refs := make([]roleRef, 0, len(roles))
	for _, role := range roles {
		refs = append(refs, roleRef{ID: role.ID, Name: role.Name})
	}

	out := &userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		IsActive:    user.IsActive,
		IsSuperuser: user.IsSuperuser,
		DeptID:      user.DeptID,
		Roles:       refs,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
	if user.LastLogin != nil {
		formatted := user.LastLogin.UTC().Format(time.RFC3339)
		out.LastLogin = &formatted
	}
	return out, nil
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.UserFilter{
		Page:     queryPage(r),
		Username: q.Get("username"),
		Email:    q.Get("email"),
	}
	if deptID, err := strconv.ParseInt(q.Get("dept_id"), 10, 64); err == nil {
		filter.DeptID = deptID
	}

	users, total, err := s.store.ListUsers(r.Context(), filter)
	if err != nil {
		failStore(w, err)
		return
	}

	out := make([]*userResponse, 0, len(users))
	for _, user := range users {
		u, err := s.userOut(r, user)
		if err != nil {
			fail(w, http.StatusInternalServerError, "internal error")
			return
		}
		out = append(out, u)
	}
	successPage(w, out, total, filter.Page)
}

func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
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

type userCreateRequest struct {
	Username    string  `json:"username" validate:"required,min=2,max=64"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Password    string  `json:"password" validate:"required,min=8"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser bool    `json:"is_superuser"`
	DeptID      int64   `json:"dept_id"`
	RoleIDs     []int64 `json:"role_ids"`
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user := &store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     active,
		IsSuperuser:  req.IsSuperuser,
		DeptID:       req.DeptID,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		failStore(w, err)
		return
	}
	if len(req.RoleIDs) > 0 {
		if err := s.store.SetUserRoles(r.Context(), user.ID, req.RoleIDs); err != nil {
			failStore(w, err)
			return
		}
	}
	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	success(w, map[string]int64{"id": user.ID})
}

type userUpdateRequest struct {
	ID          int64   `json:"id" validate:"required,min=1"`
	Username    string  `json:"username" validate:"required,min=2,max=64"`
	Email       string  `json:"email" validate:"omitempty,email"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	DeptID      *int64  `json:"dept_id"`
	RoleIDs     []int64 `json:"role_ids"`
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var req userUpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	user, err := s.store.GetUser(r.Context(), req.ID)
	if err != nil {
		failStore(w, err)
		return
	}

	user.Username = req.Username
	user.Email = req.Email
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.IsSuperuser != nil {
		user.IsSuperuser = *req.IsSuperuser
	}
	if req.DeptID != nil {
		user.DeptID = *req.DeptID
	}
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		failStore(w, err)
		return
	}
	if req.RoleIDs != nil {
		if err := s.store.SetUserRoles(r.Context(), user.ID, req.RoleIDs); err != nil {
			failStore(w, err)
			return
		}
	}

	// role or status changes must take effect immediately
	s.resolver.Invalidate(user.ID)
	success(w, nil)
}

type userResetPasswordRequest struct {
	ID       int64  `json:"id" validate:"required,min=1"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) handleUserResetPassword(w http.ResponseWriter, r *http.Request) {
	var req userResetPasswordRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.store.SetUserPassword(r.Context(), req.ID, string(hash)); err != nil {
		failStore(w, err)
		return
	}
	s.logger.Info("password reset", "user_id", req.ID)
	success(w, nil)
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		failStore(w, err)
		return
	}
	s.resolver.Invalidate(id)
	s.logger.Info("user deleted", "user_id", id)
	success(w, nil)
}
