package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"homepulse/internal/model"
)

type Config struct {
	LogLevel    string                  `json:"log_level" yaml:"log_level"`
	Ingest      IngestConfig            `json:"ingest" yaml:"ingest"`
	Detection   DetectionConfig         `json:"detection" yaml:"detection"`
	Thresholds  []model.ThresholdConfig `json:"thresholds" yaml:"thresholds"`
	Grouping    GroupingConfig          `json:"grouping" yaml:"grouping"`
	Maintenance MaintenanceConfig       `json:"maintenance" yaml:"maintenance"`
	API         APIConfig               `json:"api" yaml:"api"`
	Storage     StorageConfig           `json:"storage" yaml:"storage"`
	Alerts      AlertsConfig            `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig     `json:"rest" yaml:"rest"`
	FileTail      FileTailConfig `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// DetectionConfig holds the tunables of the evaluator, detector and
// estimator. The shipped defaults mirror the three sensitivity presets
// surfaced to users (high/medium/low = 2/3/4 sigma).
type DetectionConfig struct {
	Sensitivity          string             `json:"sensitivity" yaml:"sensitivity"`
	BaselineWindow       int                `json:"baseline_window" yaml:"baseline_window"`
	MinBaselineSamples   int                `json:"min_baseline_samples" yaml:"min_baseline_samples"`
	TrendWindow          int                `json:"trend_window" yaml:"trend_window"`
	ForecastHorizon      time.Duration      `json:"forecast_horizon" yaml:"forecast_horizon"`
	ConfidenceFloor      int                `json:"confidence_floor" yaml:"confidence_floor"`
	CriticalDeviationPct int                `json:"critical_deviation_pct" yaml:"critical_deviation_pct"`
	HighConfidence       int                `json:"high_confidence" yaml:"high_confidence"`
	MediumConfidence     int                `json:"medium_confidence" yaml:"medium_confidence"`
	SafetyCaps           map[string]float64 `json:"safety_caps" yaml:"safety_caps"`
	RepeatCooldown       time.Duration      `json:"repeat_cooldown" yaml:"repeat_cooldown"`
	DedupeWindow         time.Duration      `json:"dedupe_window" yaml:"dedupe_window"`
}

// SigmaK maps the sensitivity preset to the sigma cutoff for the anomaly
// detector.
func (d DetectionConfig) SigmaK() float64 {
	switch strings.ToLower(d.Sensitivity) {
	case "high":
		return 2
	case "low":
		return 4
	default:
		return 3
	}
}

type GroupingConfig struct {
	Window    time.Duration `json:"window" yaml:"window"`
	MemberCap int           `json:"member_cap" yaml:"member_cap"`
}

// MaintenanceConfig lists devices whose samples are skipped entirely, for
// example while a unit is being serviced.
type MaintenanceConfig struct {
	Devices []string `json:"devices" yaml:"devices"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit  int `json:"store_limit" yaml:"store_limit"`
	GroupsLimit int `json:"groups_limit" yaml:"groups_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Detection: DetectionConfig{
			Sensitivity:          "medium",
			BaselineWindow:       96,
			MinBaselineSamples:   10,
			TrendWindow:          12,
			ForecastHorizon:      24 * time.Hour,
			ConfidenceFloor:      50,
			CriticalDeviationPct: 20,
			HighConfidence:       90,
			MediumConfidence:     70,
			SafetyCaps:           map[string]float64{"temperature_c": 60},
			RepeatCooldown:       5 * time.Minute,
			DedupeWindow:         1 * time.Second,
		},
		Grouping: GroupingConfig{
			Window:    24 * time.Hour,
			MemberCap: 50,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:homepulse.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000, GroupsLimit: 200},
	}
}

// FindThreshold returns the enabled threshold config for a stream, if any.
func (c *Config) FindThreshold(deviceID, metric string) (model.ThresholdConfig, bool) {
	for _, tc := range c.Thresholds {
		if tc.Enabled && tc.Matches(deviceID, metric) {
			return tc, true
		}
	}
	return model.ThresholdConfig{}, false
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Detection.Sensitivity == "" {
		cfg.Detection.Sensitivity = "medium"
	}
	if cfg.Detection.BaselineWindow <= 0 {
		cfg.Detection.BaselineWindow = 96
	}
	if cfg.Detection.MinBaselineSamples <= 0 {
		cfg.Detection.MinBaselineSamples = 10
	}
	if cfg.Detection.TrendWindow <= 0 {
		cfg.Detection.TrendWindow = 12
	}
	if cfg.Detection.ForecastHorizon <= 0 {
		cfg.Detection.ForecastHorizon = 24 * time.Hour
	}
	if cfg.Detection.ConfidenceFloor <= 0 {
		cfg.Detection.ConfidenceFloor = 50
	}
	if cfg.Detection.CriticalDeviationPct <= 0 {
		cfg.Detection.CriticalDeviationPct = 20
	}
	if cfg.Detection.HighConfidence <= 0 {
		cfg.Detection.HighConfidence = 90
	}
	if cfg.Detection.MediumConfidence <= 0 {
		cfg.Detection.MediumConfidence = 70
	}
	if cfg.Grouping.Window <= 0 {
		cfg.Grouping.Window = 24 * time.Hour
	}
	if cfg.Grouping.MemberCap <= 0 {
		cfg.Grouping.MemberCap = 50
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Alerts.GroupsLimit <= 0 {
		cfg.Alerts.GroupsLimit = 200
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	switch strings.ToLower(cfg.Detection.Sensitivity) {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("detection.sensitivity must be high, medium or low, got %q", cfg.Detection.Sensitivity)
	}
	if cfg.Detection.MinBaselineSamples > cfg.Detection.BaselineWindow {
		return errors.New("detection.min_baseline_samples exceeds baseline_window")
	}
	seen := make(map[string]struct{}, len(cfg.Thresholds))
	for i := range cfg.Thresholds {
		if err := ValidateThreshold(cfg.Thresholds[i]); err != nil {
			return fmt.Errorf("thresholds[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.Thresholds[i].ID]; dup {
			return fmt.Errorf("thresholds[%d]: duplicate id %q", i, cfg.Thresholds[i].ID)
		}
		seen[cfg.Thresholds[i].ID] = struct{}{}
	}
	return nil
}

// ValidateThreshold rejects malformed threshold configs at write time so
// they never reach the evaluator.
func ValidateThreshold(tc model.ThresholdConfig) error {
	if strings.TrimSpace(tc.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(tc.DeviceID) == "" || strings.TrimSpace(tc.Metric) == "" {
		return errors.New("device_id and metric_name are required")
	}
	if tc.Min == nil && tc.Max == nil {
		return errors.New("at least one of min or max is required")
	}
	if tc.Min != nil && tc.Max != nil && *tc.Min >= *tc.Max {
		return fmt.Errorf("min must be below max (%v >= %v)", *tc.Min, *tc.Max)
	}
	if tc.Severity != "" {
		if _, ok := model.ParseSeverity(string(tc.Severity)); !ok {
			return fmt.Errorf("unknown severity %q", tc.Severity)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
