package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homepulse/internal/alerts"
	"homepulse/internal/analytics"
	"homepulse/internal/baseline"
	"homepulse/internal/config"
	"homepulse/internal/metrics"
	"homepulse/internal/model"
	"homepulse/internal/storage"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
}

type Server struct {
	cfg       *config.Manager
	repo      alerts.Repository
	groups    *alerts.Grouper
	baselines *baseline.Store
	engine    EngineControl
	store     storage.Store
	logger    *slog.Logger
	version   string
}

type statusResponse struct {
	Status      string       `json:"status"`
	Time        string       `json:"time"`
	Version     string       `json:"version"`
	ConfigPath  string       `json:"config_path"`
	Sensitivity string       `json:"sensitivity"`
	Thresholds  int          `json:"thresholds"`
	OpenGroups  int          `json:"open_groups"`
	Ingest      ingestStatus `json:"ingest"`
}

type ingestStatus struct {
	REST     bool `json:"rest"`
	FileTail bool `json:"file_tail"`
	Kafka    bool `json:"kafka"`
}

func Start(ctx context.Context, cfg *config.Manager, repo alerts.Repository, groups *alerts.Grouper, baselines *baseline.Store, engine EngineControl, store storage.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:       cfg,
		repo:      repo,
		groups:    groups,
		baselines: baselines,
		engine:    engine,
		store:     store,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/", server.handleAlertAction)
	mux.HandleFunc("/groups", server.handleGroups)
	mux.HandleFunc("/groups/", server.handleGroupAction)
	mux.HandleFunc("/analytics", server.handleAnalytics)
	mux.HandleFunc("/thresholds", server.handleThresholds)
	mux.HandleFunc("/thresholds/", server.handleThresholdUpdate)
	mux.HandleFunc("/baselines", server.handleBaselines)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:      "ok",
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		Version:     s.version,
		ConfigPath:  s.cfg.Path(),
		Sensitivity: cfg.Detection.Sensitivity,
		Thresholds:  len(cfg.Thresholds),
		OpenGroups:  s.groups.OpenCount(),
		Ingest: ingestStatus{
			REST:     cfg.Ingest.REST.Enabled,
			FileTail: cfg.Ingest.FileTail.Enabled,
			Kafka:    cfg.Ingest.Kafka.Enabled,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	f := alerts.Filter{
		DeviceID: q.Get("device"),
	}
	if v := q.Get("status"); v != "" {
		f.Status = model.Status(strings.ToLower(v))
	}
	if v := q.Get("severity"); v != "" {
		sev, ok := model.ParseSeverity(v)
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Severity = sev
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Since = ts
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	list := s.repo.List(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// handleAlertAction serves POST /alerts/{id}/{ack|resolve|snooze|unsnooze}.
func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/alerts/"), "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, action := parts[0], parts[1]
	now := time.Now().UTC()

	var updated model.Alert
	var err error
	switch action {
	case "ack":
		updated, err = s.repo.Transition(id, model.StatusAcknowledged, now)
	case "resolve":
		updated, err = s.repo.Transition(id, model.StatusResolved, now)
	case "unsnooze":
		updated, err = s.repo.Transition(id, model.StatusActive, now)
	case "snooze":
		until, parseErr := snoozeUntil(r, now)
		if parseErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		updated, err = s.repo.Snooze(id, until, now)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, alerts.ErrInvalidTransition) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.AlertTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
	if s.store != nil {
		if dbErr := s.store.UpdateAlertStatus(r.Context(), updated.ID, updated.Status, now); dbErr != nil {
			metrics.StorageErrorsTotal.Inc()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": updated})
}

func snoozeUntil(r *http.Request, now time.Time) (time.Time, error) {
	body, _ := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	var req struct {
		Duration string `json:"duration"`
		Until    string `json:"until"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return time.Time{}, err
		}
	}
	if req.Until != "" {
		return time.Parse(time.RFC3339, req.Until)
	}
	d := time.Hour
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil || parsed <= 0 {
			return time.Time{}, errors.New("bad snooze duration")
		}
		d = parsed
	}
	return now.Add(d), nil
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := s.groups.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": list,
		"count":  len(list),
	})
}

// handleGroupAction serves POST /groups/{id}/{snooze|unsnooze}. Snoozing a
// group only mutes notifications; member alerts keep their own status.
func (s *Server) handleGroupAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/groups/"), "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, action := parts[0], parts[1]

	var grp model.AlertGroup
	var err error
	switch action {
	case "snooze":
		until, parseErr := snoozeUntil(r, time.Now().UTC())
		if parseErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		grp, err = s.groups.Snooze(id, &until)
	case "unsnooze":
		grp, err = s.groups.Unsnooze(id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.store != nil {
		if dbErr := s.store.SaveGroup(r.Context(), grp); dbErr != nil {
			metrics.StorageErrorsTotal.Inc()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": grp})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	now := time.Now().UTC()
	window := 7 * 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		window = parsed
	}
	snap := analytics.Compute(s.repo.All(), now.Add(-window), now, now)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"thresholds": s.cfg.Get().Thresholds,
		})
	case http.MethodPost:
		var tc model.ThresholdConfig
		if !decodeBody(w, r, &tc) {
			return
		}
		if err := config.ValidateThreshold(tc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		current := s.cfg.Get()
		for _, existing := range current.Thresholds {
			if existing.ID == tc.ID {
				writeJSON(w, http.StatusConflict, map[string]any{"error": "threshold id already exists"})
				return
			}
		}
		next := *current
		next.Thresholds = append(append([]model.ThresholdConfig{}, current.Thresholds...), tc)
		s.applyConfig(w, &next, map[string]any{"threshold": tc})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleThresholdUpdate serves PUT /thresholds/{id}. Edits take effect on
// the next sample; past alerts are never reclassified.
func (s *Server) handleThresholdUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/thresholds/"), "/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var tc model.ThresholdConfig
	if !decodeBody(w, r, &tc) {
		return
	}
	tc.ID = id
	if err := config.ValidateThreshold(tc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	current := s.cfg.Get()
	next := *current
	next.Thresholds = append([]model.ThresholdConfig{}, current.Thresholds...)
	found := false
	for i := range next.Thresholds {
		if next.Thresholds[i].ID == id {
			next.Thresholds[i] = tc
			found = true
			break
		}
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.applyConfig(w, &next, map[string]any{"threshold": tc})
}

func (s *Server) applyConfig(w http.ResponseWriter, next *config.Config, payload map[string]any) {
	if err := s.cfg.Update(next); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if s.engine != nil {
		s.engine.UpdateConfig(next)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	all := s.baselines.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"baselines": all,
		"count":     len(all),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.repo.Clear()
		s.groups.Clear()
		s.baselines.Clear()
	case "alerts":
		s.repo.Clear()
		s.groups.Clear()
	case "baselines":
		s.baselines.Clear()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	s.repo.Clear()
	s.groups.Clear()
	s.baselines.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
