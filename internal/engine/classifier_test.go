package engine

import (
	"testing"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

func latencyOnlyLink(id string, entry, recovery float64) config.LinkConfig {
	return config.LinkConfig{
		ID: id,
		Thresholds: map[models.Metric]config.ThresholdBand{
			models.MetricLatencyMs: {Entry: entry, Recovery: recovery},
		},
	}
}

func linkWithLatency(id string, latency float64) *models.WANLink {
	link := models.NewWANLink(id)
	link.EWMA[models.MetricLatencyMs] = latency
	return link
}

func TestClassifierBands(t *testing.T) {
	classifier := NewClassifier(config.CombineWorst, []config.LinkConfig{
		latencyOnlyLink("wan0", 150, 100),
	})

	cases := []struct {
		name    string
		latency float64
		want    models.Tier
	}{
		{"well below recovery", 50, models.TierClear},
		{"inside band from clear side", 120, models.TierWarn},
		{"at entry", 150, models.TierCongested},
		{"inside band stays congested", 120, models.TierCongested},
		{"at recovery", 100, models.TierClear},
		{"inside band from clear side again", 120, models.TierWarn},
	}

	link := models.NewWANLink("wan0")
	for _, tc := range cases {
		link.EWMA[models.MetricLatencyMs] = tc.latency
		if got := classifier.Classify(link); got != tc.want {
			t.Fatalf("%s: tier = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifierUnseededLinkIsClear(t *testing.T) {
	classifier := NewClassifier(config.CombineWorst, []config.LinkConfig{
		latencyOnlyLink("wan0", 150, 100),
	})
	if got := classifier.Classify(models.NewWANLink("wan0")); got != models.TierClear {
		t.Fatalf("unseeded link tier = %s, want clear", got)
	}
}

func TestClassifierUnknownLinkIsClear(t *testing.T) {
	classifier := NewClassifier(config.CombineWorst, nil)
	if got := classifier.Classify(linkWithLatency("ghost", 999)); got != models.TierClear {
		t.Fatalf("unknown link tier = %s, want clear", got)
	}
}

func multiMetricLink(id string) config.LinkConfig {
	return config.LinkConfig{
		ID: id,
		Thresholds: map[models.Metric]config.ThresholdBand{
			models.MetricLatencyMs: {Entry: 150, Recovery: 100},
			models.MetricLossRatio: {Entry: 0.05, Recovery: 0.01},
		},
	}
}

func TestClassifierCombineWorst(t *testing.T) {
	classifier := NewClassifier(config.CombineWorst, []config.LinkConfig{multiMetricLink("wan0")})

	link := models.NewWANLink("wan0")
	link.EWMA[models.MetricLatencyMs] = 50
	link.EWMA[models.MetricLossRatio] = 0.10

	if got := classifier.Classify(link); got != models.TierCongested {
		t.Fatalf("one congested metric under worst policy: tier = %s, want congested", got)
	}
}

func TestClassifierCombineAll(t *testing.T) {
	classifier := NewClassifier(config.CombineAll, []config.LinkConfig{multiMetricLink("wan0")})

	link := models.NewWANLink("wan0")
	link.EWMA[models.MetricLatencyMs] = 50
	link.EWMA[models.MetricLossRatio] = 0.10
	if got := classifier.Classify(link); got != models.TierWarn {
		t.Fatalf("one congested metric under all policy: tier = %s, want warn", got)
	}

	link.EWMA[models.MetricLatencyMs] = 200
	if got := classifier.Classify(link); got != models.TierCongested {
		t.Fatalf("all metrics congested under all policy: tier = %s, want congested", got)
	}
}
