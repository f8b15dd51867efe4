package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/metrics"
	"github.com/steerstack/wansteer/internal/models"
	"github.com/steerstack/wansteer/internal/utils"
)

// Collector describes the measurement fan-out consumed by the loop. Collect
// must honour ctx and return partial results rather than block past it.
type Collector interface {
	Collect(ctx context.Context) map[string]models.MeasurementSample
	Configure(links []config.LinkConfig)
}

// Applier hands a directive set to the route controller. The loop treats the
// call as fire-and-forget; retrying transient failures is the applier's job.
type Applier interface {
	Apply(ctx context.Context, set models.DirectiveSet) error
}

// degradedApplyStreak is the number of consecutive failed directive handoffs
// after which the snapshot reports degraded operation.
const degradedApplyStreak = 3

// Loop is the control-loop driver. It owns all link state; within a tick only
// measurement collection runs concurrently, so the decision pipeline needs no
// locking. Readers observe link state exclusively through the atomically
// published snapshot.
type Loop struct {
	logger    *slog.Logger
	clock     clock.Clock
	collector Collector
	applier   Applier

	cfg        *config.Config
	tuning     Tuning
	smoother   *Smoother
	classifier *Classifier
	machine    *StateMachine
	decider    *DecisionEngine

	links map[string]*models.WANLink
	order []string

	seq      uint64
	overruns uint64
	lastSet  models.DirectiveSet
	hasLast  bool

	allFailedStreak int
	applyFailStreak atomic.Int64

	cycleLat *utils.LatencyTracker
	snapshot atomic.Pointer[models.StatusSnapshot]

	mu      sync.Mutex
	pending *config.Config
}

// NewLoop constructs a control loop from a validated configuration. A nil
// clock selects the wall clock.
func NewLoop(logger *slog.Logger, clk clock.Clock, cfg *config.Config, collector Collector, applier Applier) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tuning, err := Derive(constantsOf(cfg), cfg.Loop.Interval.Std())
	if err != nil {
		return nil, err
	}

	links := make(map[string]*models.WANLink, len(cfg.Links))
	for _, lc := range cfg.Links {
		links[lc.ID] = models.NewWANLink(lc.ID)
	}

	return &Loop{
		logger:     logger,
		clock:      clk,
		collector:  collector,
		applier:    applier,
		cfg:        cfg,
		tuning:     tuning,
		smoother:   NewSmoother(cfg.Smoothing.MissedSampleCeiling),
		classifier: NewClassifier(cfg.Classify.Combine, cfg.Links),
		machine:    NewStateMachine(tuning.RedSamplesRequired, tuning.GreenSamplesRequired),
		decider:    NewDecisionEngine(cfg.Steering.Policy, cfg.Steering.TotalWeight),
		links:      links,
		order:      cfg.LinkIDs(),
		cycleLat:   utils.NewLatencyTracker(256),
	}, nil
}

func constantsOf(cfg *config.Config) RealTimeConstants {
	return RealTimeConstants{
		TimeConstant:     cfg.Smoothing.TimeConstant.Std(),
		ConfirmCongested: cfg.Smoothing.ConfirmCongested.Std(),
		ConfirmClear:     cfg.Smoothing.ConfirmClear.Std(),
	}
}

// Run drives the loop until ctx is cancelled. An overrunning cycle schedules
// the next tick immediately instead of accumulating drift; overruns are
// recorded, never fatal.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop starting",
		slog.Duration("interval", l.tuning.Interval),
		slog.Int("links", len(l.order)),
		slog.Int("redSamplesRequired", l.tuning.RedSamplesRequired),
		slog.Int("greenSamplesRequired", l.tuning.GreenSamplesRequired))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := l.clock.Now()
		l.runCycle(ctx)
		elapsed := l.clock.Since(start)

		if interval := l.tuning.Interval; elapsed < interval {
			timer := l.clock.Timer(interval - elapsed)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		l.overruns++
		metrics.IncOverrun()
		l.logger.Warn("cycle overrun",
			slog.Duration("elapsed", elapsed),
			slog.Duration("interval", l.tuning.Interval))
	}
}

// runCycle executes one measure-decide pipeline pass.
func (l *Loop) runCycle(ctx context.Context) {
	l.applyPending()

	l.seq++
	cycle := models.CycleContext{
		Seq:       l.seq,
		Interval:  l.tuning.Interval,
		StartedAt: l.clock.Now(),
	}

	deadline := time.Duration(float64(l.tuning.Interval) * l.cfg.Loop.DeadlineFraction)
	cycle.Samples = l.collect(ctx, deadline)

	allFailed := len(l.order) > 0
	tiers := make(map[string]models.Tier, len(l.order))
	for _, id := range l.order {
		link := l.links[id]
		sample, ok := cycle.Samples[id]
		if !ok {
			sample = models.FailedSample(id, cycle.StartedAt)
		}
		if sample.Success {
			allFailed = false
		} else {
			metrics.IncProbeFailure(id)
			l.logger.Debug("probe failed", slog.String("link", id))
		}

		forced := l.smoother.Apply(link, sample, l.tuning.Alpha)
		tier := l.classifier.Classify(link)
		if forced {
			// Unknown health is unhealthy, never silently clear.
			tier = models.TierCongested
		}
		tiers[id] = tier

		if l.machine.Advance(link, tier) {
			l.logger.Info("link state committed",
				slog.String("link", id),
				slog.String("state", string(link.Committed)))
		}
		metrics.SetLinkState(id, link.Committed)
	}

	outcome := metrics.OutcomeSuccess
	if allFailed {
		l.allFailedStreak++
		outcome = metrics.OutcomeError
	} else {
		l.allFailedStreak = 0
	}

	states := make(map[string]models.State, len(l.links))
	for id, link := range l.links {
		states[id] = link.Committed
	}
	cycle.Directives = l.decider.Decide(cycle.Seq, states)

	if !l.hasLast || !cycle.Directives.Equal(l.lastSet) {
		l.dispatch(cycle.Directives)
	}
	l.lastSet = cycle.Directives
	l.hasLast = true

	duration := l.clock.Since(cycle.StartedAt)
	l.cycleLat.Observe(duration)
	metrics.ObserveCycle(duration, outcome)

	l.publish(cycle, tiers)
}

// collect runs the measurement fan-out under the per-cycle deadline. A panic
// below the collector boundary is demoted to a cycle with no samples.
func (l *Loop) collect(ctx context.Context, deadline time.Duration) (samples map[string]models.MeasurementSample) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("collector panic", slog.Any("panic", r))
			samples = nil
		}
	}()

	collectCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return l.collector.Collect(collectCtx)
}

// dispatch hands the directive set to the route controller without blocking
// the next tick.
func (l *Loop) dispatch(set models.DirectiveSet) {
	timeout := l.cfg.Controller.Timeout.Std()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := l.applier.Apply(ctx, set); err != nil {
			l.applyFailStreak.Add(1)
			metrics.ObserveApply(metrics.OutcomeError)
			l.logger.Warn("directive apply failed",
				slog.Uint64("cycle", set.Cycle),
				slog.Any("error", err))
			return
		}
		l.applyFailStreak.Store(0)
		metrics.ObserveApply(metrics.OutcomeSuccess)
	}()
}

// publish stores the end-of-tick snapshot for concurrent readers.
func (l *Loop) publish(cycle models.CycleContext, tiers map[string]models.Tier) {
	ids := append([]string(nil), l.order...)
	sort.Strings(ids)

	links := make([]models.LinkStatus, 0, len(ids))
	for _, id := range ids {
		link := l.links[id]
		ewma := make(map[models.Metric]float64, len(link.EWMA))
		for metric, value := range link.EWMA {
			ewma[metric] = value
		}
		links = append(links, models.LinkStatus{
			ID:               id,
			Committed:        link.Committed,
			Tier:             tiers[id],
			EWMA:             ewma,
			MissedStreak:     link.MissedStreak,
			PendingTier:      link.PendingTier,
			ConsecutiveCount: link.ConsecutiveCount,
		})
	}

	l.snapshot.Store(&models.StatusSnapshot{
		Cycle:      cycle.Seq,
		Interval:   cycle.Interval,
		TakenAt:    cycle.StartedAt,
		Links:      links,
		Directives: cycle.Directives,
		Overruns:   l.overruns,
		Degraded:   l.degraded(),
		CycleP50:   l.cycleLat.Percentile(50),
		CycleP99:   l.cycleLat.Percentile(99),
	})
}

func (l *Loop) degraded() bool {
	if l.allFailedStreak >= l.cfg.Smoothing.MissedSampleCeiling {
		return true
	}
	return l.applyFailStreak.Load() >= degradedApplyStreak
}

// Snapshot returns the most recently published status snapshot, or nil before
// the first cycle completes. Safe for concurrent use.
func (l *Loop) Snapshot() *models.StatusSnapshot {
	return l.snapshot.Load()
}

// Reconfigure validates cfg and schedules it to take effect at the next tick
// boundary. Derived smoothing and hysteresis parameters are recomputed so the
// wall-clock detection and recovery windows are preserved across interval
// changes. An invalid configuration is rejected without touching the loop.
func (l *Loop) Reconfigure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		metrics.ObserveReconfigure(metrics.OutcomeError)
		return err
	}
	if _, err := Derive(constantsOf(cfg), cfg.Loop.Interval.Std()); err != nil {
		metrics.ObserveReconfigure(metrics.OutcomeError)
		return err
	}

	l.mu.Lock()
	l.pending = cfg
	l.mu.Unlock()
	metrics.ObserveReconfigure(metrics.OutcomeSuccess)
	return nil
}

// applyPending swaps in a scheduled configuration at the tick boundary.
func (l *Loop) applyPending() {
	l.mu.Lock()
	cfg := l.pending
	l.pending = nil
	l.mu.Unlock()
	if cfg == nil {
		return
	}

	tuning, err := Derive(constantsOf(cfg), cfg.Loop.Interval.Std())
	if err != nil {
		// Validated at submission; failing here is a programming error.
		l.logger.Error("tuning derivation failed", slog.Any("error", err))
		return
	}

	classifier := NewClassifier(cfg.Classify.Combine, cfg.Links)
	for id, sides := range l.classifier.crossed {
		if _, kept := classifier.thresholds[id]; kept {
			classifier.crossed[id] = sides
		}
	}

	l.cfg = cfg
	l.tuning = tuning
	l.classifier = classifier
	l.smoother.SetCeiling(cfg.Smoothing.MissedSampleCeiling)
	l.machine.SetRequirements(tuning.RedSamplesRequired, tuning.GreenSamplesRequired)
	l.decider.SetPolicy(cfg.Steering.Policy, cfg.Steering.TotalWeight)

	keep := make(map[string]struct{}, len(cfg.Links))
	order := make([]string, 0, len(cfg.Links))
	for _, lc := range cfg.Links {
		keep[lc.ID] = struct{}{}
		order = append(order, lc.ID)
		if _, ok := l.links[lc.ID]; !ok {
			l.links[lc.ID] = models.NewWANLink(lc.ID)
		}
	}
	for id := range l.links {
		if _, ok := keep[id]; !ok {
			delete(l.links, id)
			metrics.ForgetLink(id)
		}
	}
	l.order = order
	l.collector.Configure(cfg.Links)

	l.logger.Info("configuration applied",
		slog.Duration("interval", tuning.Interval),
		slog.Int("links", len(order)),
		slog.Int("redSamplesRequired", tuning.RedSamplesRequired),
		slog.Int("greenSamplesRequired", tuning.GreenSamplesRequired))
}

// Tuning returns the loop's currently effective derived parameters.
func (l *Loop) Tuning() Tuning {
	return l.tuning
}
