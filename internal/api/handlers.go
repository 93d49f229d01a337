package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"accessdash/internal/activity"
	"accessdash/internal/breaker"
	"accessdash/internal/cache"
	"accessdash/internal/insights"
	"accessdash/internal/store"
)

const defaultLogsLimit = 100

// load serves key from the cache, filling it with fn on a miss, and tags the
// response with the cache status.
func load[T any](h *Handler, w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	status := cacheMiss
	if h.cache.Has(key) {
		status = cacheHit
	}
	value, err := cache.Load(r.Context(), h.cache, key, ttl, fn)
	if err != nil {
		h.metrics.RecordSupplierFailure(r.Pattern)
		return value, err
	}
	w.Header().Set(CacheHeader, status)
	if recorder, ok := w.(cacheStatusWriter); ok {
		recorder.setCacheStatus(status)
	}
	h.metrics.RecordCacheRequest(r.Pattern, status)
	return value, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := load(h, w, r, cache.Key("users", nil), h.cache.DefaultTTL(), h.store.ListUsers)
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := cache.Key("user", map[string]string{"id": id})
	user, err := load(h, w, r, key, h.cache.DefaultTTL(), func(ctx context.Context) (store.User, error) {
		return h.store.GetUser(ctx, id)
	})
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDoors(w http.ResponseWriter, r *http.Request) {
	doors, err := load(h, w, r, cache.Key("doors", nil), h.cache.DefaultTTL(), h.store.ListDoors)
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doors)
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := load(h, w, r, cache.Key("devices", nil), h.cache.DefaultTTL(), h.store.ListDevices)
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since := activity.Since(h.now(), 1, h.loc)
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "since must be RFC3339")
			return
		}
		since = parsed
	}
	limit := defaultLogsLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLogsLimit)
	}

	key := cache.Key("logs", map[string]string{"since": since.UTC().Format(time.RFC3339Nano)})
	logs, err := load(h, w, r, key, h.cache.DefaultTTL(), func(ctx context.Context) ([]store.AccessLog, error) {
		return h.store.ListAccessLogs(ctx, since)
	})
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}
	summary, err := load(h, w, r, activityKey(days), h.cache.DefaultTTL(), func(ctx context.Context) (activity.Summary, error) {
		return h.aggregate(ctx, days)
	})
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}
	if !h.insights.Enabled() {
		h.metrics.RecordInsights("disabled")
		writeError(w, r, http.StatusServiceUnavailable, "insights_disabled", insights.ErrDisabled.Error())
		return
	}
	key := cache.Key("insights", map[string]string{"days": strconv.Itoa(days)})
	insight, err := load(h, w, r, key, h.insightsTTL, func(ctx context.Context) (insights.Insight, error) {
		// A store failure here is logged by the cache under both keys and
		// counted once, for this route.
		summary, err := cache.Load(ctx, h.cache, activityKey(days), h.cache.DefaultTTL(), func(ctx context.Context) (activity.Summary, error) {
			return h.aggregate(ctx, days)
		})
		if err != nil {
			return insights.Insight{}, err
		}
		insight, err := h.insights.Summarize(ctx, summary)
		if err != nil {
			h.metrics.RecordInsights("error")
			return insights.Insight{}, err
		}
		h.metrics.RecordInsights("ok")
		return insight, nil
	})
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	h.cache.Clear()
	h.logger.Info("cache cleared")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *Handler) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	deleted := h.cache.Delete(key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "deleted": deleted})
}

func (h *Handler) aggregate(ctx context.Context, days int) (activity.Summary, error) {
	now := h.now()
	logs, err := h.store.ListAccessLogs(ctx, activity.Since(now, days, h.loc))
	if err != nil {
		return activity.Summary{}, err
	}
	doors, err := h.store.ListDoors(ctx)
	if err != nil {
		return activity.Summary{}, err
	}
	return activity.Aggregate(logs, doors, now, days, h.loc), nil
}

func (h *Handler) parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return activity.DefaultDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "days must be an integer")
		return 0, false
	}
	return activity.ClampDays(days), true
}

func (h *Handler) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "timeout", "upstream timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusServiceUnavailable, "canceled", "request canceled")
	case errors.Is(err, insights.ErrDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "insights_disabled", err.Error())
	case errors.Is(err, breaker.ErrOpen):
		writeError(w, r, http.StatusServiceUnavailable, "insights_unavailable", "insights temporarily unavailable")
	default:
		writeError(w, r, http.StatusBadGateway, "upstream_error", "upstream request failed")
	}
}

func activityKey(days int) string {
	return cache.Key("activity", map[string]string{"days": strconv.Itoa(days)})
}
