// Package httpapi exposes the auth kernel over HTTP and the gRPC health protocol.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/gate"
	"gatehouse.dev/internal/obs"
)

const (
	serviceName  = "gatehouse"
	maxBodyBytes = 1 << 20
)

// Options tunes the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Version      string
	CookieName   string
	CookieSecure bool
	RateBurst    int
	RatePerSec   float64
	Logger       *zap.Logger
	Audit        *audit.Logger
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	svc          *auth.Service
	gate         *gate.Gate
	audit        *audit.Logger
	log          *zap.Logger
	version      string
	cookieName   string
	cookieSecure bool
	rateBurst    int
	ratePerSec   float64
}

// New wires every route of the service.
func New(svc *auth.Service, opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		svc:          svc,
		gate:         gate.New(svc),
		audit:        opts.Audit,
		log:          opts.Logger,
		version:      opts.Version,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		rateBurst:    opts.RateBurst,
		ratePerSec:   opts.RatePerSec,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.audit == nil {
		a.audit = audit.New(a.log)
	}
	if a.cookieName == "" {
		a.cookieName = "session_token"
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 10
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 5
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	limited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	a.mux.Handle("POST /api/auth/register", limited(a.handleRegister))
	a.mux.Handle("POST /api/auth/login", limited(a.handleLogin))
	a.mux.HandleFunc("POST /api/auth/logout", a.handleLogout)

	authed := a.gate.Chain()
	a.mux.Handle("GET /api/auth/me", a.guarded(authed, a.handleProfile))
	a.mux.Handle("GET /api/user/profile", a.guarded(authed, a.handleProfile))
	a.mux.Handle("PUT /api/user/profile", a.guarded(authed, a.handleUpdateProfile))
	a.mux.Handle("DELETE /api/user/profile", a.guarded(authed, a.handleDeactivate))
	a.mux.Handle("PUT /api/user/profile/password", a.guarded(authed, a.handleChangePassword))
	a.mux.Handle("GET /api/user/sessions", a.guarded(authed, a.handleSessions))

	admin := a.gate.Chain(auth.RoleRequirement(auth.RoleAdmin))
	a.mux.Handle("GET /api/admin/roles", a.guarded(admin, a.handleListRoles))
	a.mux.Handle("POST /api/admin/roles", a.guarded(admin, a.handleCreateRole))
	a.mux.Handle("GET /api/admin/roles/{id}", a.guarded(admin, a.handleGetRole))
	a.mux.Handle("PUT /api/admin/roles/{id}", a.guarded(admin, a.handleUpdateRole))
	a.mux.Handle("DELETE /api/admin/roles/{id}", a.guarded(admin, a.handleDeleteRole))
	a.mux.Handle("POST /api/admin/roles/{id}/permissions", a.guarded(admin, a.handleAttachPermission))
	a.mux.Handle("DELETE /api/admin/roles/{id}/permissions/{permissionID}", a.guarded(admin, a.handleDetachPermission))
	a.mux.Handle("GET /api/admin/permissions", a.guarded(admin, a.handleListPermissions))
	a.mux.Handle("POST /api/admin/permissions", a.guarded(admin, a.handleCreatePermission))
	a.mux.Handle("DELETE /api/admin/permissions/{id}", a.guarded(admin, a.handleDeletePermission))
	a.mux.Handle("GET /api/admin/users", a.guarded(admin, a.handleListUsers))
	a.mux.Handle("GET /api/admin/users/{id}", a.guarded(admin, a.handleGetUser))
	a.mux.Handle("POST /api/admin/users/{id}/roles", a.guarded(admin, a.handleAttachRole))
	a.mux.Handle("DELETE /api/admin/users/{id}/roles/{roleID}", a.guarded(admin, a.handleDetachRole))

	a.mux.HandleFunc("GET /api/resources/{type}", a.resourceHandler("read"))
	a.mux.HandleFunc("POST /api/resources/{type}", a.resourceHandler("create"))
}

// Handler returns the root handler with the middleware stack applied.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h, a.log)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// auditEvent records event and logs, but never surfaces, a write failure.
func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	if err := a.audit.LogEvent(r.Context(), event, fields); err != nil {
		a.log.Warn("audit write failed", zap.String("event", event), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return auth.Malformed("request body is required")
		}
		return auth.Malformed(err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return auth.Malformed("unexpected data after JSON body")
	}
	return nil
}
