package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-outlook-service/internal/lifecycle"
	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
	"github.com/kjstillabower/climate-outlook-service/internal/service"
	"github.com/kjstillabower/climate-outlook-service/internal/traffic"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdRPM   int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, is called to check cache reachability. Used for
	// the memcached and sqlite backends.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	outlooks         *service.OutlookService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(outlooks *service.OutlookService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		outlooks:     outlooks,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetOutlook handles GET /outlook. Query parameters: lat, lon, date
// (YYYY-MM-DD), window (days, default 7), units (metric|imperial,
// default metric).
func (h *Handler) GetOutlook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "lat must be a number")
		return
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "lon must be a number")
		return
	}
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "date is required")
		return
	}
	windowDays := 7
	if s := strings.TrimSpace(q.Get("window")); s != "" {
		windowDays, err = strconv.Atoi(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "window must be an integer day count")
			return
		}
	}
	units := models.Units(strings.TrimSpace(strings.ToLower(q.Get("units"))))
	if units == "" {
		units = models.UnitsMetric
	}

	req := models.OutlookRequest{
		Lat:        lat,
		Lon:        lon,
		TargetDate: date,
		WindowDays: windowDays,
		Units:      units,
	}

	resp, err := h.outlooks.ComputeOutlook(r.Context(), req)
	if err != nil {
		if outlookerr.KindOf(err) == outlookerr.KindUpstreamData {
			traffic.RecordError()
		}
		writeOutlookError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, resp)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["provider"] = "unhealthy"
	} else {
		checks["provider"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "climate-outlook-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus determines the current health status by evaluating
// conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.OverloadWindow > 0 && h.healthConfig.OverloadThresholdRPM > 0 {
		threshold := float64(h.healthConfig.OverloadThresholdRPM) * h.healthConfig.OverloadWindow.Minutes()
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.IdleWindow > 0 && h.healthConfig.MinimumLifespan > 0 && time.Since(h.healthConfig.StartTime) >= h.healthConfig.MinimumLifespan {
		if traffic.RequestCount(h.healthConfig.IdleWindow) < h.healthConfig.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message and requestId (correlation ID) when available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeOutlookError maps the error taxonomy to HTTP status codes. Validation
// failures surface their message to the caller; upstream and internal errors
// get generic messages and the detail goes to the debug log.
func writeOutlookError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code, message string
	switch outlookerr.KindOf(err) {
	case outlookerr.KindInvalidParameter:
		status, code, message = http.StatusBadRequest, "INVALID_PARAMETER", err.Error()
	case outlookerr.KindDataUnavailable:
		status, code, message = http.StatusNotFound, "DATA_UNAVAILABLE", "no provider coverage for the requested date"
	case outlookerr.KindInsufficientData, outlookerr.KindEmptySample:
		status, code, message = http.StatusUnprocessableEntity, "INSUFFICIENT_DATA", "not enough observations to compute an outlook"
	case outlookerr.KindUpstreamData:
		status, code, message = http.StatusBadGateway, "UPSTREAM_ERROR", "unable to fetch observation data"
	default:
		status, code, message = http.StatusInternalServerError, "INTERNAL", "internal error"
	}
	writeError(w, r, status, code, message)
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("outlook request failed", zap.Error(err), zap.Int("status", status))
	}
}
