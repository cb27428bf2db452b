package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dashboard"
	"github.com/JakeFAU/labor-stats-dashboard/internal/logging"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
)

const (
	minNameLength = 2
	maxMonths     = 120
)

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "labor stats API running"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.clock.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// listStates handles GET /states. 404 when the upstream has no data.
func (s *Server) listStates(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.States(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "No data found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listDistricts handles GET /districts?state=S.
func (s *Server) listDistricts(w http.ResponseWriter, r *http.Request) {
	state, err := requiredName(r, "state")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.Districts(r.Context(), state)
	if err != nil {
		s.writeServiceError(w, r, err, "No districts found for this state")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getDashboard handles GET /dashboard?state=S&district=D&months=N.
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	state, err := requiredName(r, "state")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	district, err := requiredName(r, "district")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	months, err := parseMonths(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.Dashboard(r.Context(), state, district, months)
	if err != nil {
		s.writeServiceError(w, r, err, "No data for this district/state")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// refresh handles POST /refresh. It blocks until ingestion finishes.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	// A client that hangs up must not abort a run halfway through the reconcile.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.refreshTimeout)
	defer cancel()

	res, err := s.service.Refresh(ctx)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("refresh failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]any{
			"error":  "refresh failed",
			"result": res.Result,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// latestSnapshot handles GET /snapshots/latest?dataset=.
func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("dataset"))
	if name == "" {
		name = s.cfg.Dataset.Name
	}
	info, err := s.store.LatestSnapshot(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshot recorded")
			return
		}
		logging.FromContext(r.Context(), s.logger).Error("latest snapshot lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, dashboard.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	logging.FromContext(r.Context(), s.logger).Error("dashboard request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func requiredName(r *http.Request, param string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(param))
	if v == "" {
		return "", errors.New(param + " is required")
	}
	if len([]rune(v)) < minNameLength {
		return "", errors.New(param + " must be at least 2 characters")
	}
	return v, nil
}

func parseMonths(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("months"))
	if raw == "" {
		return dashboard.DefaultMonths, nil
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months <= 0 || months > maxMonths {
		return 0, errors.New("invalid months")
	}
	return months, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
