// Package api serves the dashboard's REST routes. Every read goes through
// the shared cache, so repeated requests inside the TTL never reach the
// store or the model.
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"accessdash/internal/cache"
	"accessdash/internal/insights"
	"accessdash/internal/obs"
	"accessdash/internal/store"
)

const (
	CacheHeader = "X-Cache"
	cacheHit    = "hit"
	cacheMiss   = "miss"

	DefaultInsightsTTL = 15 * time.Minute
	maxLogsLimit       = 1000
)

type Config struct {
	Store       store.Store
	Cache       *cache.Cache
	Insights    *insights.Service
	InsightsTTL time.Duration
	Metrics     *obs.Metrics
	Logger      *zap.Logger
	AdminToken  string
	RateLimiter *RateLimiter
	Location    *time.Location
	Now         func() time.Time
}

type Handler struct {
	store       store.Store
	cache       *cache.Cache
	insights    *insights.Service
	insightsTTL time.Duration
	metrics     *obs.Metrics
	logger      *zap.Logger
	auth        *Authenticator
	limiter     *RateLimiter
	loc         *time.Location
	now         func() time.Time
	mux         *http.ServeMux
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		store:       cfg.Store,
		cache:       cfg.Cache,
		insights:    cfg.Insights,
		insightsTTL: cfg.InsightsTTL,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		auth:        NewAuthenticator(cfg.AdminToken),
		limiter:     cfg.RateLimiter,
		loc:         cfg.Location,
		now:         cfg.Now,
		mux:         http.NewServeMux(),
	}
	if h.cache == nil {
		h.cache = cache.New(cache.Options{Logger: cfg.Logger})
	}
	if h.insightsTTL == 0 {
		h.insightsTTL = DefaultInsightsTTL
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /api/users", h.handleUsers)
	h.mux.HandleFunc("GET /api/users/{id}", h.handleUser)
	h.mux.HandleFunc("GET /api/doors", h.handleDoors)
	h.mux.HandleFunc("GET /api/devices", h.handleDevices)
	h.mux.HandleFunc("GET /api/logs", h.handleLogs)
	h.mux.HandleFunc("GET /api/activity", h.handleActivity)
	h.mux.HandleFunc("GET /api/insights", h.handleInsights)
	h.mux.HandleFunc("GET /api/cache/stats", h.handleCacheStats)
	h.mux.Handle("POST /api/cache/clear", h.admin(h.handleCacheClear))
	h.mux.Handle("DELETE /api/cache/{key...}", h.admin(h.handleCacheDelete))
	h.mux.Handle("GET /metrics", h.metrics.Handler())
	return h
}

// Cache exposes the handler's cache for the admin service and reload hooks.
func (h *Handler) Cache() *cache.Cache {
	return h.cache
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = NewRequestID()
	}
	r = r.WithContext(WithRequestID(r.Context(), requestID))
	w.Header().Set(RequestIDHeader, requestID)

	recorder := newResponseRecorder(w)
	h.mux.ServeHTTP(recorder, r)

	duration := time.Since(start)
	h.metrics.ObserveRequest(r.Pattern, recorder.status, duration)
	obs.LogAccess(h.logger, obs.RequestContext{
		RequestID:     requestID,
		Method:        r.Method,
		Path:          r.URL.Path,
		Route:         r.Pattern,
		Status:        recorder.status,
		Duration:      duration,
		BytesOut:      recorder.bytesWritten,
		CacheStatus:   recorder.cacheStatus,
		ErrorCategory: recorder.errorCategory,
		UserAgent:     r.UserAgent(),
		RemoteAddr:    r.RemoteAddr,
	})
}

func (h *Handler) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(r.RemoteAddr) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if err := h.auth.Authenticate(r); err != nil {
			status := http.StatusUnauthorized
			if authErr, ok := err.(*AuthError); ok {
				status = authErr.Status
			}
			if status == http.StatusUnauthorized {
				h.limiter.RecordFailure(r.RemoteAddr)
			}
			h.logger.Warn("admin request rejected",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("authorization", obs.RedactHeaderValue("Authorization", r.Header.Get("Authorization"))),
				zap.Error(err),
			)
			writeError(w, r, status, "unauthorized", err.Error())
			return
		}
		h.limiter.ResetFailures(r.RemoteAddr)
		next(w, r)
	})
}
