package engine

import (
	"math"
	"testing"
	"time"

	"homepulse/internal/alerts"
	"homepulse/internal/baseline"
	"homepulse/internal/config"
	"homepulse/internal/model"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Detection.RepeatCooldown = 0
	cfg.Detection.DedupeWindow = 0
	cfg.Thresholds = []model.ThresholdConfig{
		{ID: "t1", DeviceID: "hvac", Metric: "power_kwh", Max: f64(10), Enabled: true},
	}
	return cfg
}

func testEngine(cfg *config.Config) (*Engine, *alerts.Store, *alerts.Grouper) {
	repo := alerts.NewStore(100)
	groups := alerts.NewGrouper(cfg.Grouping.Window, cfg.Grouping.MemberCap, 50)
	eng := NewEngine(cfg, nil, baseline.NewStore(0), repo, groups, nil)
	return eng, repo, groups
}

func TestPipelineBreachScenario(t *testing.T) {
	eng, repo, _ := testEngine(testConfig())
	values := []float64{8.4, 9.0, 9.6, 10.4, 10.1}
	var created []model.Alert
	for i, v := range values {
		created = append(created, eng.ProcessSample(sampleAt(v, i))...)
	}
	if len(created) != 1 {
		t.Fatalf("expected exactly 1 alert over the run, got %d", len(created))
	}
	a := created[0]
	if a.Category != model.CategoryThreshold || a.Severity != model.SeverityHigh {
		t.Fatalf("expected a high threshold alert, got %s/%s", a.Category, a.Severity)
	}
	if a.Value != 10.4 {
		t.Fatalf("alert must carry the breaching value, got %v", a.Value)
	}
	if got := repo.All(); len(got) != 1 {
		t.Fatalf("store should hold 1 alert, got %d", len(got))
	}
}

func TestPipelineClearResolvesAlert(t *testing.T) {
	eng, repo, _ := testEngine(testConfig())
	if out := eng.ProcessSample(sampleAt(11, 0)); len(out) != 1 {
		t.Fatalf("expected breach alert, got %d", len(out))
	}
	if out := eng.ProcessSample(sampleAt(9, 1)); len(out) != 0 {
		t.Fatalf("a clear must not create an alert")
	}
	all := repo.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 stored alert, got %d", len(all))
	}
	if all[0].Status != model.StatusResolved || all[0].ResolvedAt == nil {
		t.Fatalf("clear must resolve the open breach alert, got %s", all[0].Status)
	}
}

func TestPipelineOutOfOrderRejected(t *testing.T) {
	eng, _, _ := testEngine(testConfig())
	eng.ProcessSample(sampleAt(5, 2))
	// Older than the stream watermark: dropped, never evaluated.
	if out := eng.ProcessSample(sampleAt(50, 0)); out != nil {
		t.Fatalf("out-of-order sample must be rejected")
	}
	// The watermark itself must be untouched by the rejected sample.
	if out := eng.ProcessSample(sampleAt(12, 3)); len(out) != 1 {
		t.Fatalf("stream must keep evaluating after a rejection, got %d alerts", len(out))
	}
}

func TestPipelineMalformedRejected(t *testing.T) {
	eng, repo, _ := testEngine(testConfig())
	bad := []model.MetricSample{
		{DeviceID: "", Metric: "power_kwh", Value: 50, Timestamp: time.Now()},
		{DeviceID: "hvac", Metric: "", Value: 50, Timestamp: time.Now()},
		{DeviceID: "hvac", Metric: "power_kwh", Value: math.NaN(), Timestamp: time.Now()},
		{DeviceID: "hvac", Metric: "power_kwh", Value: math.Inf(1), Timestamp: time.Now()},
		{DeviceID: "hvac", Metric: "power_kwh", Value: 50},
	}
	for i, s := range bad {
		if out := eng.ProcessSample(s); out != nil {
			t.Fatalf("sample %d: malformed sample must be dropped", i)
		}
	}
	if len(repo.All()) != 0 {
		t.Fatalf("no alerts expected from malformed samples")
	}
}

func TestPipelineMaintenanceMute(t *testing.T) {
	cfg := testConfig()
	cfg.Maintenance.Devices = []string{"HVAC"}
	eng, repo, _ := testEngine(cfg)
	if out := eng.ProcessSample(sampleAt(50, 0)); out != nil {
		t.Fatalf("muted device must not alert")
	}
	if len(repo.All()) != 0 {
		t.Fatalf("no alerts expected while device is under maintenance")
	}
}

func TestPipelineDuplicateDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Detection.DedupeWindow = time.Minute
	eng, repo, _ := testEngine(cfg)
	s := sampleAt(12, 0)
	if out := eng.ProcessSample(s); len(out) != 1 {
		t.Fatalf("first copy must alert")
	}
	if out := eng.ProcessSample(s); out != nil {
		t.Fatalf("exact duplicate must be dropped")
	}
	if len(repo.All()) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(repo.All()))
	}
}

func TestPipelineGroupsRecurringBreaches(t *testing.T) {
	eng, repo, groups := testEngine(testConfig())
	// Breach, clear, breach: two alerts for the same stream and title.
	eng.ProcessSample(sampleAt(11, 0))
	eng.ProcessSample(sampleAt(9, 1))
	eng.ProcessSample(sampleAt(12, 2))

	all := repo.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(all))
	}
	if all[0].GroupID == "" || all[0].GroupID != all[1].GroupID {
		t.Fatalf("both alerts must share a group, got %q and %q", all[0].GroupID, all[1].GroupID)
	}
	if groups.OpenCount() != 1 {
		t.Fatalf("expected 1 open group, got %d", groups.OpenCount())
	}
	grp, ok := groups.Get(all[0].GroupID)
	if !ok {
		t.Fatalf("group %q not found", all[0].GroupID)
	}
	if grp.Count != 2 {
		t.Fatalf("group count: expected 2, got %d", grp.Count)
	}
}

func TestPipelineAnomalyThroughEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds = nil
	eng, _, _ := testEngine(cfg)
	// Stable baseline, then a spike well past 3 sigma.
	pattern := []float64{9, 10, 11, 10, 9, 11, 10, 10, 9, 11}
	for i, v := range pattern {
		if out := eng.ProcessSample(sampleAt(v, i)); out != nil {
			t.Fatalf("baseline fill must not alert, sample %d", i)
		}
	}
	out := eng.ProcessSample(sampleAt(25, len(pattern)))
	if len(out) != 1 || out[0].Category != model.CategoryAnomaly {
		t.Fatalf("expected 1 anomaly alert, got %+v", out)
	}
	if out[0].Confidence < 50 || out[0].Confidence > 99 {
		t.Fatalf("confidence out of range: %d", out[0].Confidence)
	}
}

func TestPipelineConfigReload(t *testing.T) {
	eng, _, _ := testEngine(testConfig())
	next := testConfig()
	next.Thresholds = nil
	eng.UpdateConfig(next)
	if out := eng.ProcessSample(sampleAt(50, 0)); out != nil {
		t.Fatalf("disabled threshold must stop alerting")
	}
	eng.UpdateConfig(testConfig())
	if out := eng.ProcessSample(sampleAt(50, 1)); len(out) != 1 {
		t.Fatalf("re-enabled threshold must alert again")
	}
}

func TestPipelineBaselinePublished(t *testing.T) {
	eng, _, _ := testEngine(testConfig())
	baselines := eng.baselines
	for i, v := range []float64{4, 6, 5, 5} {
		eng.ProcessSample(sampleAt(v, i))
	}
	stats, ok := baselines.Get("hvac|power_kwh")
	if !ok {
		t.Fatalf("baseline stats not published")
	}
	if stats.Samples != 4 {
		t.Fatalf("expected 4 samples in the window, got %d", stats.Samples)
	}
	if stats.Mean != 5 {
		t.Fatalf("mean: expected 5, got %v", stats.Mean)
	}
}
