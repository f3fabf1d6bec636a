package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/auth"
	"github.com/pb2106/Network-Control/internal/db"
	"github.com/pb2106/Network-Control/internal/firewall"
	"github.com/pb2106/Network-Control/internal/metrics"
	"github.com/pb2106/Network-Control/internal/registry"
	"github.com/pb2106/Network-Control/internal/store"
)

// AuthService issues and validates operator tokens.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, store.Operator, error)
	Validate(token string) (*auth.Claims, error)
}

// DeviceRegistry is the device surface exposed over the API.
type DeviceRegistry interface {
	Get(ctx context.Context, id int64) (store.Device, error)
	List(ctx context.Context, offset, limit int32) ([]store.Device, error)
	SetRole(ctx context.Context, id int64, role string) (store.Device, error)
	Archive(ctx context.Context, id int64) (store.Device, error)
}

// FirewallEngine performs enforcement actions.
type FirewallEngine interface {
	Perform(ctx context.Context, operator, targetIP string, kind firewall.ActionKind) (firewall.Outcome, error)
}

// AuditQueries reads the append-only action log.
type AuditQueries interface {
	ListActionRecords(ctx context.Context, arg store.ListActionRecordsParams) ([]store.ActionRecord, error)
	GetActionStats(ctx context.Context) (store.ActionStats, error)
}

// AlertQueries reads and acknowledges alerts.
type AlertQueries interface {
	ListAlerts(ctx context.Context, arg store.ListAlertsParams) ([]store.Alert, error)
	MarkAlertRead(ctx context.Context, id int64) (store.Alert, error)
	MarkAllAlertsRead(ctx context.Context) (int64, error)
	GetAlertStats(ctx context.Context) (store.AlertStats, error)
}

// SyncHub upgrades authenticated requests into streaming sessions.
type SyncHub interface {
	Serve(w http.ResponseWriter, r *http.Request, operator string) error
}

// Scanner requests an immediate discovery sweep.
type Scanner interface {
	TriggerScan() bool
}

type Options struct {
	Auth    AuthService
	Devices DeviceRegistry
	Engine  FirewallEngine
	Audit   AuditQueries
	Alerts  AlertQueries
	Sync    SyncHub
	Scanner Scanner
}

type Handler struct {
	log     zerolog.Logger
	pool    *db.Pool
	metrics *metrics.Metrics

	auth    AuthService
	devices DeviceRegistry
	engine  FirewallEngine
	audit   AuditQueries
	alerts  AlertQueries
	sync    SyncHub
	scanner Scanner
}

func NewHandler(log zerolog.Logger, pool *db.Pool, m *metrics.Metrics, opts Options) *Handler {
	h := &Handler{
		log:     log,
		pool:    pool,
		metrics: m,
		auth:    opts.Auth,
		devices: opts.Devices,
		engine:  opts.Engine,
		audit:   opts.Audit,
		alerts:  opts.Alerts,
		sync:    opts.Sync,
		scanner: opts.Scanner,
	}
	if pool != nil {
		q := pool.Queries()
		if h.audit == nil {
			h.audit = q
		}
		if h.alerts == nil {
			h.alerts = q
		}
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	// The socket authenticates through a token query parameter because
	// browser WebSocket clients cannot set an Authorization header.
	r.Get("/ws/sync", h.requireOperator(h.handleSync))

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Post("/auth/login", h.handleLogin)
			r.Get("/auth/me", h.requireOperator(h.handleMe))

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", h.requireOperator(h.handleListDevices))
				r.Post("/scan", h.requireOperator(h.handleTriggerScan))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.requireOperator(h.handleGetDevice))
					r.Patch("/", h.requireOperator(h.handleUpdateDevice))
					r.Delete("/", h.requireOperator(h.handleArchiveDevice))
				})
			})

			r.Route("/firewall", func(r chi.Router) {
				r.Post("/action", h.requireOperator(h.handleFirewallAction))
				r.Post("/kick/{id}", h.requireOperator(h.handleKickDevice))
				r.Get("/logs", h.requireOperator(h.handleActionLogs))
				r.Get("/stats", h.requireOperator(h.handleActionStats))
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.requireOperator(h.handleListAlerts))
				r.Get("/stats", h.requireOperator(h.handleAlertStats))
				r.Post("/read-all", h.requireOperator(h.handleMarkAllAlertsRead))
				r.Post("/{id}/read", h.requireOperator(h.handleMarkAlertRead))
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		h.metrics.ObserveHTTPRequest(r.Method, routePattern, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// claimsKey carries the authenticated operator through the request context.
type claimsKey struct{}

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

func bearerToken(r *http.Request) string {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(hdr, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(hdr, "Bearer "))
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.auth == nil {
			h.writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		claims, err := h.auth.Validate(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if h.auth == nil {
		h.writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication not configured", nil)
		return
	}

	token, op, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to authenticate", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"operator": op,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"username": claims.Username,
		"role":     claims.Role,
	})
}

func (h *Handler) ensureDevices(w http.ResponseWriter) bool {
	if h.devices == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "device registry not configured", nil)
		return false
	}
	return true
}

func deviceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func listParams(r *http.Request) (int32, int32) {
	q := r.URL.Query()
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 32)
	limit, err := strconv.ParseInt(q.Get("limit"), 10, 32)
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return int32(offset), int32(limit)
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !h.ensureDevices(w) {
		return
	}
	offset, limit := listParams(r)

	rows, err := h.devices.List(r.Context(), offset, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list devices", nil)
		return
	}
	if rows == nil {
		rows = []store.Device{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureDevices(w) {
		return
	}
	id, err := deviceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "device id must be an integer", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	row, err := h.devices.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("get device failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch device", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, row)
}

type deviceUpdate struct {
	Role string `json:"role"`
}

func (h *Handler) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureDevices(w) {
		return
	}
	id, err := deviceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "device id must be an integer", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	var req deviceUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	row, err := h.devices.SetRole(r.Context(), id, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
		case errors.Is(err, registry.ErrUnknownRole):
			h.writeError(w, http.StatusBadRequest, "invalid_role", "device role must be Admin, Volunteer, or Other", map[string]any{"role": req.Role})
		default:
			h.log.Error().Err(err).Int64("id", id).Msg("update device failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "failed to update device", nil)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, row)
}

func (h *Handler) handleArchiveDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureDevices(w) {
		return
	}
	id, err := deviceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "device id must be an integer", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	row, err := h.devices.Archive(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("archive device failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to archive device", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, row)
}

func (h *Handler) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "discovery_disabled", "discovery is not enabled", nil)
		return
	}
	queued := h.scanner.TriggerScan()
	h.writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

type firewallActionRequest struct {
	IP     string `json:"ip"`
	Action string `json:"action"`
}

func (h *Handler) handleFirewallAction(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "firewall_unavailable", "firewall engine not configured", nil)
		return
	}

	var req firewallActionRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	h.performAction(w, r, req.IP, firewall.ActionKind(req.Action))
}

func (h *Handler) handleKickDevice(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "firewall_unavailable", "firewall engine not configured", nil)
		return
	}
	if !h.ensureDevices(w) {
		return
	}
	id, err := deviceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "device id must be an integer", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	device, err := h.devices.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("kick lookup failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch device", nil)
		return
	}

	h.performAction(w, r, device.IP, firewall.ActionKick)
}

func (h *Handler) performAction(w http.ResponseWriter, r *http.Request, ip string, kind firewall.ActionKind) {
	operator := claimsFrom(r.Context()).Username

	out, err := h.engine.Perform(r.Context(), operator, ip, kind)
	if err != nil {
		switch {
		case errors.Is(err, firewall.ErrSelfProtection):
			h.writeError(w, http.StatusForbidden, "self_protection", "refusing to act on this host's own address", map[string]any{"ip": ip})
		case errors.Is(err, firewall.ErrUnknownDevice):
			h.writeError(w, http.StatusNotFound, "not_found", "no known device with that address", map[string]any{"ip": ip})
		case errors.Is(err, firewall.ErrBadAddress):
			h.writeError(w, http.StatusBadRequest, "invalid_address", "target is not a valid IP address", map[string]any{"ip": ip})
		case errors.Is(err, firewall.ErrInvalidAction):
			h.writeError(w, http.StatusBadRequest, "invalid_action", "action must be block, unblock, or kick", map[string]any{"action": string(kind)})
		default:
			h.log.Error().Err(err).Str("ip", ip).Msg("firewall action failed")
			h.writeError(w, http.StatusInternalServerError, "internal_error", "firewall action failed", nil)
		}
		return
	}

	// An unsuccessful outcome is a recorded fact, not a transport error; the
	// client inspects the success flag and detail.
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleActionLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	offset, limit := listParams(r)

	rows, err := h.audit.ListActionRecords(r.Context(), store.ListActionRecordsParams{Offset: offset, Limit: limit})
	if err != nil {
		h.log.Error().Err(err).Msg("list action records failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list action log", nil)
		return
	}
	if rows == nil {
		rows = []store.ActionRecord{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleActionStats(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	stats, err := h.audit.GetActionStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("action stats failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to compute action stats", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	offset, limit := listParams(r)
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	rows, err := h.alerts.ListAlerts(r.Context(), store.ListAlertsParams{Offset: offset, Limit: limit, UnreadOnly: unreadOnly})
	if err != nil {
		h.log.Error().Err(err).Msg("list alerts failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list alerts", nil)
		return
	}
	if rows == nil {
		rows = []store.Alert{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "alert id must be an integer", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	alert, err := h.alerts.MarkAlertRead(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "alert not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("mark alert read failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to update alert", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleMarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	n, err := h.alerts.MarkAllAlertsRead(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("mark all alerts read failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to update alerts", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

func (h *Handler) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}
	stats, err := h.alerts.GetAlertStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("alert stats failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to compute alert stats", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sync_unavailable", "sync hub not running", nil)
		return
	}
	operator := claimsFrom(r.Context()).Username
	if err := h.sync.Serve(w, r, operator); err != nil {
		// The upgrader has already written its own failure response.
		h.log.Warn().Err(err).Str("operator", operator).Msg("websocket upgrade failed")
	}
}
