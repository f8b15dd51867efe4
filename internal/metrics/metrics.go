package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steerstack/wansteer/internal/models"
)

const (
	// OutcomeSuccess labels cycles or applies that completed normally.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles or applies that failed.
	OutcomeError = "error"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wansteer",
			Name:      "cycles_total",
			Help:      "Total control-loop cycles executed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wansteer",
			Name:      "cycle_seconds",
			Help:      "Control-loop cycle duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	overrunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wansteer",
			Name:      "overruns_total",
			Help:      "Cycles whose work exceeded the configured interval.",
		},
	)

	probeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wansteer",
			Name:      "probe_failures_total",
			Help:      "Failed measurement samples, partitioned by link.",
		},
		[]string{"link"},
	)

	linkCommittedState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wansteer",
			Name:      "link_committed_state",
			Help:      "Committed link state: 0 clear, 1 congested.",
		},
		[]string{"link"},
	)

	directiveAppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wansteer",
			Name:      "directive_applies_total",
			Help:      "Directive sets handed to the route controller, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	reconfiguresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wansteer",
			Name:      "reconfigures_total",
			Help:      "Runtime reconfiguration attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches wansteer collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleSeconds,
		overrunsTotal,
		probeFailuresTotal,
		linkCommittedState,
		directiveAppliesTotal,
		reconfiguresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records one cycle's duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	cyclesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleSeconds.Observe(duration.Seconds())
}

// IncOverrun counts a cycle that ran past the interval.
func IncOverrun() {
	overrunsTotal.Inc()
}

// IncProbeFailure counts a failed sample for the link.
func IncProbeFailure(linkID string) {
	probeFailuresTotal.WithLabelValues(linkID).Inc()
}

// SetLinkState publishes the committed state gauge for the link.
func SetLinkState(linkID string, state models.State) {
	value := 0.0
	if state == models.StateCongested {
		value = 1.0
	}
	linkCommittedState.WithLabelValues(linkID).Set(value)
}

// ForgetLink drops per-link series when a link leaves configuration.
func ForgetLink(linkID string) {
	linkCommittedState.DeleteLabelValues(linkID)
	probeFailuresTotal.DeleteLabelValues(linkID)
}

// ObserveApply counts a directive handoff to the route controller.
func ObserveApply(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	directiveAppliesTotal.WithLabelValues(outcome).Inc()
}

// ObserveReconfigure counts a runtime reconfiguration attempt.
func ObserveReconfigure(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	reconfiguresTotal.WithLabelValues(outcome).Inc()
}
