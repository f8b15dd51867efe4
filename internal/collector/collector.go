package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

// Prober measures one uplink. Expected failure modes (timeout, unreachable)
// must surface as a sample with Success=false, not as an error; an error is
// reserved for conditions the prober cannot express as a sample.
type Prober interface {
	Probe(ctx context.Context, link config.LinkConfig) (models.MeasurementSample, error)
}

// Collector fans probes out across all configured links and fans the samples
// back in. Each probe runs under its own timeout so one slow link can never
// delay the others past the shared per-cycle deadline.
type Collector struct {
	logger  *slog.Logger
	probers map[config.ProbeKind]Prober

	mu    sync.RWMutex
	links []config.LinkConfig
}

// New builds a collector over the given links. probers maps each configured
// probe kind to its implementation.
func New(logger *slog.Logger, links []config.LinkConfig, probers map[config.ProbeKind]Prober) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		logger:  logger,
		probers: probers,
		links:   append([]config.LinkConfig(nil), links...),
	}
}

// Configure replaces the probed link set on reconfiguration.
func (c *Collector) Configure(links []config.LinkConfig) {
	c.mu.Lock()
	c.links = append([]config.LinkConfig(nil), links...)
	c.mu.Unlock()
}

// Collect probes every link concurrently and returns whatever samples were
// produced by the time ctx expires. Partial results are valid input for the
// rest of the pipeline; absent links count as failed samples upstream.
func (c *Collector) Collect(ctx context.Context) map[string]models.MeasurementSample {
	c.mu.RLock()
	links := append([]config.LinkConfig(nil), c.links...)
	c.mu.RUnlock()

	results := make(map[string]models.MeasurementSample, len(links))
	var resultsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, link := range links {
		link := link
		g.Go(func() error {
			sample := c.probeLink(gctx, link)
			resultsMu.Lock()
			results[link.ID] = sample
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// probeLink runs one link's probe with its configured timeout and retries.
// A panicking prober is demoted to a failed sample for that link only.
func (c *Collector) probeLink(ctx context.Context, link config.LinkConfig) (sample models.MeasurementSample) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("prober panic",
				slog.String("link", link.ID),
				slog.Any("panic", r))
			sample = failedNow(link.ID)
		}
	}()

	prober, ok := c.probers[link.Probe]
	if !ok {
		c.logger.Error("no prober registered", slog.String("link", link.ID), slog.String("probe", string(link.Probe)))
		return failedNow(link.ID)
	}

	for attempt := 0; attempt <= link.Retries; attempt++ {
		if ctx.Err() != nil {
			return failedNow(link.ID)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, link.Timeout.Std())
		got, err := prober.Probe(attemptCtx, link)
		cancel()

		if err != nil {
			c.logger.Debug("probe attempt errored",
				slog.String("link", link.ID),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}
		if got.Success {
			return got
		}
		sample = got
	}

	if sample.LinkID == "" {
		return failedNow(link.ID)
	}
	return sample
}

func failedNow(linkID string) models.MeasurementSample {
	return models.FailedSample(linkID, time.Now())
}
