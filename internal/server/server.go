// ABOUTME: HTTP server wiring the admin API together
// ABOUTME: Router construction, CORS, request logging, and the middleware chain

package server

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/authz"
	"github.com/lanternops/agentadmin/internal/filter"
	"github.com/lanternops/agentadmin/internal/store"
	"github.com/lanternops/agentadmin/internal/upstream"
)

const (
	defaultLoginPerMinute   = 5
	defaultRefreshPerMinute = 10
)

// Options carries the server's tunables.
type Options struct {
	Version          string
	AllowedOrigins   []string
	LoginPerMinute   int
	RefreshPerMinute int
	UploadDir        string
}

// Server is the admin HTTP API.
type Server struct {
	store    store.Store
	codec    *auth.Codec
	resolver *authz.Resolver
	filter   *filter.Engine
	agents   *upstream.Client
	validate *validator.Validate
	logger   *slog.Logger
	opts     Options

	router chi.Router
}

// New assembles the server. The router is built once; Handler returns it.
func New(st store.Store, codec *auth.Codec, resolver *authz.Resolver,
	engine *filter.Engine, agents *upstream.Client, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LoginPerMinute <= 0 {
		opts.LoginPerMinute = defaultLoginPerMinute
	}
	if opts.RefreshPerMinute <= 0 {
		opts.RefreshPerMinute = defaultRefreshPerMinute
	}
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join(os.TempDir(), "agentadmin-uploads")
	}

	s := &Server{
		store:    st,
		codec:    codec,
		resolver: resolver,
		filter:   engine,
		agents:   agents,
		validate: validator.New(),
		logger:   logger.With("component", "server"),
		opts:     opts,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints: credentials and liveness.
		r.Group(func(r chi.Router) {
			r.With(httprate.LimitByIP(s.opts.LoginPerMinute, time.Minute)).
				Post("/base/access_token", s.handleLogin)
			r.With(httprate.LimitByIP(s.opts.RefreshPerMinute, time.Minute)).
				Post("/base/refresh_token", s.handleRefresh)
			r.Get("/base/health", s.handleHealth)
			r.Get("/base/version", s.handleVersion)
		})

		// Everything else requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.store, s.codec))
			r.Use(s.auditMiddleware)

			// Self-service endpoints: any authenticated user.
			r.Get("/base/userinfo", s.handleUserInfo)
			r.Get("/base/usermenu", s.handleUserMenu)
			r.Get("/base/userapi", s.handleUserAPI)
			r.Post("/base/update_password", s.handleUpdatePassword)
			r.Post("/file/upload", s.handleFileUpload)
			r.Get("/file/get", s.handleFileGet)

			// Role-gated endpoints.
			r.Group(func(r chi.Router) {
				r.Use(authz.Require(s.resolver))

				r.Get("/user/list", s.handleUserList)
				r.Get("/user/get", s.handleUserGet)
				r.Post("/user/create", s.handleUserCreate)
				r.Post("/user/update", s.handleUserUpdate)
				r.Post("/user/reset_password", s.handleUserResetPassword)
				r.Delete("/user/delete", s.handleUserDelete)

				r.Get("/role/list", s.handleRoleList)
				r.Get("/role/get", s.handleRoleGet)
				r.Get("/role/authorized", s.handleRoleAuthorizedGet)
				r.Post("/role/create", s.handleRoleCreate)
				r.Post("/role/update", s.handleRoleUpdate)
				r.Post("/role/authorized", s.handleRoleAuthorizedSet)
				r.Delete("/role/delete", s.handleRoleDelete)

				r.Get("/menu/list", s.handleMenuList)
				r.Get("/menu/get", s.handleMenuGet)
				r.Post("/menu/create", s.handleMenuCreate)
				r.Post("/menu/update", s.handleMenuUpdate)
				r.Delete("/menu/delete", s.handleMenuDelete)

				r.Get("/api/list", s.handleAPIList)
				r.Get("/api/get", s.handleAPIGet)
				r.Post("/api/create", s.handleAPICreate)
				r.Post("/api/update", s.handleAPIUpdate)
				r.Post("/api/refresh", s.handleAPIRefresh)
				r.Delete("/api/delete", s.handleAPIDelete)

				r.Get("/dept/list", s.handleDeptList)
				r.Get("/dept/get", s.handleDeptGet)
				r.Post("/dept/create", s.handleDeptCreate)
				r.Post("/dept/update", s.handleDeptUpdate)
				r.Delete("/dept/delete", s.handleDeptDelete)

				r.Get("/auditlog/list", s.handleAuditLogList)

				r.Get("/agent/list", s.handleAgentList)
				r.Group(func(r chi.Router) {
					r.Use(authz.RequireAgent(s.resolver))
					r.Get("/agent/{agent_id}", s.handleAgentGet)
					r.Post("/agent/{agent_id}/chat", s.handleChatStream)
					r.Post("/agent/{agent_id}/chat/blocking", s.handleChatBlocking)
				})
			})
		})
	})

	return r
}

// corsMiddleware answers preflight requests and stamps allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	allowAll := false
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, token")
			w.Header().Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request with method, path, status, and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusRecorder captures the response status for logging and auditing.
// It forwards Flush so streaming handlers keep working through the chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// queryID extracts an integer "id" query parameter.
func queryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryPage extracts paging parameters, falling back to the defaults.
func queryPage(r *http.Request) store.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return store.Page{Page: page, PageSize: size}
}

// moduleOf derives the audit module name from an API path.
func moduleOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		return rest[:i]
	}
	return rest
}
