package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firi193/lucid/internal/service/auth"
	"github.com/firi193/lucid/internal/service/post"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	posts        post.Service
	dbHealth     func(context.Context) error
	maxBodyBytes int64

	registerer         prometheus.Registerer
	gatherer           prometheus.Gatherer
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

const (
	healthCheckTimeout  = 2 * time.Second
	defaultMaxBodyBytes = 2 << 20
	// room for JSON framing and escapes around the post content
	bodyOverheadBytes = 64 << 10
)

// NewRouter assembles routes with dependencies. A nil registry selects the
// process-wide Prometheus registry. maxContentBytes bounds request bodies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, postSvc post.Service, dbHealth func(context.Context) error, registry *prometheus.Registry, maxContentBytes int) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		auth:         authSvc,
		posts:        postSvc,
		dbHealth:     dbHealth,
		maxBodyBytes: defaultMaxBodyBytes,
		registerer:   prometheus.DefaultRegisterer,
		gatherer:     prometheus.DefaultGatherer,
	}
	if maxContentBytes > 0 {
		r.maxBodyBytes = int64(maxContentBytes) + bodyOverheadBytes
	}
	if registry != nil {
		r.registerer = registry
		r.gatherer = registry
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/auth/register", r.audit("/auth/register", r.handleRegister))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.handleLogin))
	r.mux.HandleFunc("/posts", r.audit("/posts", r.withBearer(r.handlePosts)))
	r.mux.HandleFunc("/posts/{id}", r.audit("/posts/{id}", r.withBearer(r.handlePost)))
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !r.decode(w, req, &payload) {
		return
	}
	user, err := r.auth.Register(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	markActor(w, user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !r.decode(w, req, &payload) {
		return
	}
	user, session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	markActor(w, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
		"session": map[string]any{
			"token":      session.Token,
			"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
			"expires_in": int64(session.ExpiresIn / time.Second),
		},
	})
}

func (r *Router) handlePosts(w http.ResponseWriter, req *http.Request) {
	token, ok := credentialFromContext(req.Context())
	if !ok {
		r.logger.Error("credential missing for posts", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		posts, err := r.posts.List(req.Context(), token)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		if len(posts) > 0 {
			markActor(w, posts[0].OwnerID)
		}
		writeJSON(w, http.StatusOK, posts)
	case http.MethodPost:
		var payload struct {
			Content string `json:"content"`
		}
		if !r.decode(w, req, &payload) {
			return
		}
		created, err := r.posts.Create(req.Context(), token, payload.Content)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		markActor(w, created.OwnerID)
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handlePost(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	token, ok := credentialFromContext(req.Context())
	if !ok {
		r.logger.Error("credential missing for post delete", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	postID, err := strconv.ParseInt(strings.TrimSpace(req.PathValue("id")), 10, 64)
	if err != nil || postID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	if err := r.posts.Delete(req.Context(), token, postID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) decode(w http.ResponseWriter, req *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, req.Body, r.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if recorder.userID != "" {
			actor = "user"
			fields = append(fields, "user_id", recorder.userID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	userID string
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetUserID(id string) {
	sr.userID = id
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

type actorRecorder interface {
	SetUserID(string)
}

// markActor attributes the request to a user in the audit log when the id is known.
func markActor(w http.ResponseWriter, userID string) {
	if rec, ok := w.(actorRecorder); ok && userID != "" {
		rec.SetUserID(userID)
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
