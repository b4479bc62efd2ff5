package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"homepulse/internal/alerts"
	"homepulse/internal/baseline"
	"homepulse/internal/config"
	"homepulse/internal/metrics"
	"homepulse/internal/model"
	"homepulse/internal/storage"
)

// Engine runs the sample pipeline: threshold evaluation, anomaly detection
// and trend forecasting per stream, then classification and grouping into
// the alert store. Streams are independent; all samples flow through one
// goroutine, which is what serializes per-stream ordering and alert-store
// writes.
type Engine struct {
	logger    *slog.Logger
	baselines *baseline.Store
	repo      alerts.Repository
	groups    *alerts.Grouper
	store     storage.Store
	cfg       atomic.Value
	mutes     atomic.Value
	streams   map[string]*StreamState
	mu        sync.Mutex
	started   time.Time
	cooldown  *Cooldown
	deDupe    *DedupeCache
}

// StreamState is the per-(device, metric) evaluation state. Nothing here is
// shared across streams.
type StreamState struct {
	key      string
	window   *baseline.Window
	inBreach bool
	lastTS   time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, baselines *baseline.Store, repo alerts.Repository, groups *alerts.Grouper, store storage.Store) *Engine {
	e := &Engine{
		logger:    logger,
		baselines: baselines,
		repo:      repo,
		groups:    groups,
		store:     store,
		streams:   make(map[string]*StreamState),
		started:   time.Now().UTC(),
		cooldown:  NewCooldown(),
		deDupe:    NewDedupeCache(),
	}
	e.cfg.Store(cfg)
	e.mutes.Store(buildMutes(cfg))
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.mutes.Store(buildMutes(cfg))
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) muteSet() *MuteSet {
	if v := e.mutes.Load(); v != nil {
		if m, ok := v.(*MuteSet); ok {
			return m
		}
	}
	return nil
}

func (e *Engine) Start(ctx context.Context, in <-chan model.MetricSample) {
	go func() {
		for {
			select {
			case s := <-in:
				e.ProcessSample(s)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessSample runs one sample through the full pipeline and returns the
// alerts it produced, if any.
func (e *Engine) ProcessSample(s model.MetricSample) []model.Alert {
	cfg := e.config()

	if reason, ok := e.rejectSample(s, cfg); !ok {
		metrics.SamplesRejectedTotal.WithLabelValues(reason).Inc()
		if e.logger != nil {
			e.logger.Warn("sample rejected",
				"reason", reason,
				"device_id", s.DeviceID,
				"metric", s.Metric,
				"value", s.Value,
			)
		}
		return nil
	}

	state := e.getStream(s, cfg)
	if s.Timestamp.Before(state.lastTS) {
		metrics.SamplesRejectedTotal.WithLabelValues("out_of_order").Inc()
		if e.logger != nil {
			e.logger.Warn("out-of-order sample rejected",
				"device_id", s.DeviceID,
				"metric", s.Metric,
				"sample_ts", s.Timestamp,
				"stream_ts", state.lastTS,
			)
		}
		return nil
	}
	state.lastTS = s.Timestamp
	metrics.SamplesIngestedTotal.WithLabelValues(sourceLabel(s.Source)).Inc()

	tc, hasTC := cfg.FindThreshold(s.DeviceID, s.Metric)
	det := cfg.Detection

	events := make([]model.RawEvent, 0, 3)

	if hasTC {
		ev, emitted, nowInBreach := EvaluateThreshold(s, tc, state.inBreach)
		state.inBreach = nowInBreach
		if emitted {
			if ev.Kind == model.EventClear {
				e.handleClear(ev)
			} else {
				events = append(events, ev)
			}
		}
	}

	// The detector sees the window as it was before this sample: a trailing
	// baseline never includes the value under test.
	if ev, ok := DetectAnomaly(s, state.window, det.SigmaK(), det.MinBaselineSamples); ok {
		if e.cooldown.Allow(state.key+"|anomaly", det.RepeatCooldown) {
			events = append(events, ev)
		}
	}

	state.window.Add(baseline.Point{Timestamp: s.Timestamp, Value: s.Value})
	e.publishBaseline(s, state, det)

	if hasTC && !state.inBreach {
		if ev, ok := Forecast(state.window, tc, det.TrendWindow, det.ForecastHorizon, det.ConfidenceFloor); ok {
			if e.cooldown.Allow(state.key+"|predictive", det.RepeatCooldown) {
				events = append(events, ev)
			}
		}
	}

	if len(events) == 0 {
		return nil
	}
	out := make([]model.Alert, 0, len(events))
	now := time.Now().UTC()
	for _, ev := range events {
		metrics.EventsEmittedTotal.WithLabelValues(string(ev.Kind)).Inc()
		a := BuildAlert(ev, tc, det)
		grp, retroID := e.groups.Assign(&a, now)
		a.Notifiable = len(a.NotifyChannels) > 0 && !e.groups.Suppressed(a.GroupID, now)
		e.repo.Insert(a)
		metrics.AlertsCreatedTotal.WithLabelValues(string(a.Severity), string(a.Category)).Inc()
		if retroID != "" {
			e.repo.SetGroupID(retroID, a.GroupID)
		}
		if e.logger != nil {
			e.logger.Warn("alert created",
				"device_id", a.DeviceID,
				"metric", a.Metric,
				"category", a.Category,
				"severity", a.Severity,
				"group_id", a.GroupID,
			)
		}
		if e.store != nil {
			if err := e.store.SaveAlert(context.Background(), a); err != nil {
				metrics.StorageErrorsTotal.Inc()
			}
			if grp != nil {
				if err := e.store.SaveGroup(context.Background(), *grp); err != nil {
					metrics.StorageErrorsTotal.Inc()
				}
			}
		}
		out = append(out, a)
	}
	metrics.GroupsOpen.Set(float64(e.groups.OpenCount()))
	return out
}

// rejectSample filters out samples that must never reach a detector or a
// baseline window.
func (e *Engine) rejectSample(s model.MetricSample, cfg *config.Config) (string, bool) {
	if strings.TrimSpace(s.DeviceID) == "" || strings.TrimSpace(s.Metric) == "" {
		return "malformed", false
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return "malformed", false
	}
	if s.Timestamp.IsZero() {
		return "malformed", false
	}
	if e.muteSet().IsMuted(s.DeviceID) {
		return "maintenance", false
	}
	if cfg.Detection.DedupeWindow > 0 && e.deDupe.Seen(hashSample(s), time.Now().UTC(), cfg.Detection.DedupeWindow) {
		return "duplicate", false
	}
	return "", true
}

func (e *Engine) handleClear(ev model.RawEvent) {
	metrics.EventsEmittedTotal.WithLabelValues(string(model.EventClear)).Inc()
	now := time.Now().UTC()
	resolved := e.repo.ResolveMatching(ev.DeviceID, ev.Metric, model.CategoryThreshold, now)
	if e.logger != nil {
		e.logger.Info("threshold cleared",
			"device_id", ev.DeviceID,
			"metric", ev.Metric,
			"value", ev.Value,
			"resolved_alerts", len(resolved),
		)
	}
	if e.store != nil {
		for _, a := range resolved {
			if err := e.store.UpdateAlertStatus(context.Background(), a.ID, model.StatusResolved, now); err != nil {
				metrics.StorageErrorsTotal.Inc()
			}
		}
	}
}

func (e *Engine) publishBaseline(s model.MetricSample, state *StreamState, det config.DetectionConfig) {
	mean, stddev := state.window.MeanStdDev()
	stats := baseline.Stats{
		DeviceID:  s.DeviceID,
		Metric:    s.Metric,
		Mean:      mean,
		StdDev:    stddev,
		Samples:   state.window.Len(),
		UpdatedAt: time.Now().UTC(),
	}
	if state.window.Len() >= det.TrendWindow {
		if fit, ok := fitTrend(state.window.Tail(det.TrendWindow)); ok {
			stats.Slope = fit.slope * 3600
			stats.R2 = fit.r2
		}
	}
	e.baselines.Update(state.key, stats)
}

func (e *Engine) getStream(s model.MetricSample, cfg *config.Config) *StreamState {
	key := s.StreamKey()
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.streams[key]; ok {
		return st
	}
	st := &StreamState{
		key:    key,
		window: baseline.NewWindow(cfg.Detection.BaselineWindow),
	}
	e.streams[key] = st
	return st
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.streams = make(map[string]*StreamState)
	e.mu.Unlock()
	e.cooldown = NewCooldown()
	e.deDupe = NewDedupeCache()
}

func sourceLabel(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}

func hashSample(s model.MetricSample) string {
	parts := []string{
		s.DeviceID,
		s.Metric,
		strconv.FormatFloat(s.Value, 'g', -1, 64),
		s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
