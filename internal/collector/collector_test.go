package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

type scriptedProber struct {
	mu       sync.Mutex
	attempts map[string]int
	probe    func(ctx context.Context, link config.LinkConfig, attempt int) (models.MeasurementSample, error)
}

func (p *scriptedProber) Probe(ctx context.Context, link config.LinkConfig) (models.MeasurementSample, error) {
	p.mu.Lock()
	if p.attempts == nil {
		p.attempts = make(map[string]int)
	}
	p.attempts[link.ID]++
	attempt := p.attempts[link.ID]
	p.mu.Unlock()
	return p.probe(ctx, link, attempt)
}

func okSample(id string, latency float64) models.MeasurementSample {
	return models.MeasurementSample{
		LinkID:    id,
		Values:    map[models.Metric]float64{models.MetricLatencyMs: latency},
		Success:   true,
		Timestamp: time.Now(),
	}
}

func testLink(id string, timeout time.Duration, retries int) config.LinkConfig {
	return config.LinkConfig{
		ID:      id,
		Probe:   config.ProbePing,
		Target:  "192.0.2.1",
		Timeout: config.Duration(timeout),
		Retries: retries,
		Thresholds: map[models.Metric]config.ThresholdBand{
			models.MetricLatencyMs: {Entry: 150, Recovery: 100},
		},
	}
}

func TestCollectFansOutAcrossLinks(t *testing.T) {
	prober := &scriptedProber{probe: func(_ context.Context, link config.LinkConfig, _ int) (models.MeasurementSample, error) {
		return okSample(link.ID, 25), nil
	}}
	c := New(nil, []config.LinkConfig{
		testLink("wan0", 100*time.Millisecond, 0),
		testLink("wan1", 100*time.Millisecond, 0),
		testLink("wan2", 100*time.Millisecond, 0),
	}, map[config.ProbeKind]Prober{config.ProbePing: prober})

	samples := c.Collect(context.Background())
	if len(samples) != 3 {
		t.Fatalf("sample count = %d, want 3", len(samples))
	}
	for id, s := range samples {
		if !s.Success {
			t.Fatalf("%s unexpectedly failed", id)
		}
	}
}

func TestCollectSlowLinkDoesNotBlockOthers(t *testing.T) {
	prober := &scriptedProber{probe: func(ctx context.Context, link config.LinkConfig, _ int) (models.MeasurementSample, error) {
		if link.ID == "slow" {
			<-ctx.Done()
			return models.FailedSample(link.ID, time.Now()), nil
		}
		return okSample(link.ID, 10), nil
	}}
	c := New(nil, []config.LinkConfig{
		testLink("slow", 50*time.Millisecond, 0),
		testLink("fast", 50*time.Millisecond, 0),
	}, map[config.ProbeKind]Prober{config.ProbePing: prober})

	start := time.Now()
	samples := c.Collect(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("collection took %s, per-link timeout not enforced", elapsed)
	}

	if samples["slow"].Success {
		t.Fatalf("slow link should have yielded a failed sample")
	}
	if !samples["fast"].Success {
		t.Fatalf("fast link was dragged down by the slow one")
	}
}

func TestCollectRetriesFailedProbe(t *testing.T) {
	prober := &scriptedProber{probe: func(_ context.Context, link config.LinkConfig, attempt int) (models.MeasurementSample, error) {
		if attempt == 1 {
			return models.FailedSample(link.ID, time.Now()), nil
		}
		return okSample(link.ID, 30), nil
	}}
	c := New(nil, []config.LinkConfig{testLink("wan0", 100*time.Millisecond, 1)},
		map[config.ProbeKind]Prober{config.ProbePing: prober})

	samples := c.Collect(context.Background())
	if !samples["wan0"].Success {
		t.Fatalf("retry did not recover the sample")
	}
	if prober.attempts["wan0"] != 2 {
		t.Fatalf("attempts = %d, want 2", prober.attempts["wan0"])
	}
}

func TestCollectExhaustedRetriesYieldFailedSample(t *testing.T) {
	prober := &scriptedProber{probe: func(_ context.Context, link config.LinkConfig, _ int) (models.MeasurementSample, error) {
		return models.FailedSample(link.ID, time.Now()), nil
	}}
	c := New(nil, []config.LinkConfig{testLink("wan0", 50*time.Millisecond, 2)},
		map[config.ProbeKind]Prober{config.ProbePing: prober})

	samples := c.Collect(context.Background())
	sample, ok := samples["wan0"]
	if !ok {
		t.Fatalf("no sample recorded for wan0")
	}
	if sample.Success {
		t.Fatalf("expected failed sample after exhausted retries")
	}
	if prober.attempts["wan0"] != 3 {
		t.Fatalf("attempts = %d, want 3", prober.attempts["wan0"])
	}
}

func TestCollectProberPanicIsIsolated(t *testing.T) {
	prober := &scriptedProber{probe: func(_ context.Context, link config.LinkConfig, _ int) (models.MeasurementSample, error) {
		if link.ID == "bad" {
			panic("boom")
		}
		return okSample(link.ID, 10), nil
	}}
	c := New(nil, []config.LinkConfig{
		testLink("bad", 50*time.Millisecond, 0),
		testLink("good", 50*time.Millisecond, 0),
	}, map[config.ProbeKind]Prober{config.ProbePing: prober})

	samples := c.Collect(context.Background())
	if samples["bad"].Success {
		t.Fatalf("panicking prober should yield a failed sample")
	}
	if !samples["good"].Success {
		t.Fatalf("panic leaked across links")
	}
}

func TestCollectMissingProberKind(t *testing.T) {
	c := New(nil, []config.LinkConfig{testLink("wan0", 50*time.Millisecond, 0)}, nil)
	samples := c.Collect(context.Background())
	if samples["wan0"].Success {
		t.Fatalf("link without a prober must fail, not silently pass")
	}
}

func TestConfigureReplacesLinks(t *testing.T) {
	prober := &scriptedProber{probe: func(_ context.Context, link config.LinkConfig, _ int) (models.MeasurementSample, error) {
		return okSample(link.ID, 10), nil
	}}
	c := New(nil, []config.LinkConfig{testLink("wan0", 50*time.Millisecond, 0)},
		map[config.ProbeKind]Prober{config.ProbePing: prober})

	c.Configure([]config.LinkConfig{
		testLink("wan1", 50*time.Millisecond, 0),
		testLink("wan2", 50*time.Millisecond, 0),
	})

	samples := c.Collect(context.Background())
	if _, stale := samples["wan0"]; stale {
		t.Fatalf("removed link still probed")
	}
	if len(samples) != 2 {
		t.Fatalf("sample count = %d, want 2", len(samples))
	}
}
