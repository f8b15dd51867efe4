package collector

import (
	"context"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

// STUNProber measures round-trip time with a STUN binding request against the
// link's target server. It suits targets that answer no ICMP; a single-shot
// binding exchange carries no loss signal, so loss reports zero on success.
type STUNProber struct{}

// NewSTUNProber returns a STUN round-trip prober.
func NewSTUNProber() *STUNProber {
	return &STUNProber{}
}

// Probe sends one binding request and measures the response time.
func (p *STUNProber) Probe(ctx context.Context, link config.LinkConfig) (models.MeasurementSample, error) {
	now := time.Now()

	uriStr := strings.TrimSpace(link.Target)
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}
	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return models.FailedSample(link.ID, now), nil
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return models.FailedSample(link.ID, now), nil
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan time.Duration, 1)
	fail := make(chan error, 1)

	start := time.Now()
	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- time.Since(start)
		})
		if err != nil {
			fail <- err
		}
	}()

	select {
	case rtt := <-result:
		return models.MeasurementSample{
			LinkID: link.ID,
			Values: map[models.Metric]float64{
				models.MetricLatencyMs: float64(rtt.Microseconds()) / 1000,
				models.MetricLossRatio: 0,
			},
			Success:   true,
			Timestamp: now,
		}, nil
	case <-fail:
		return models.FailedSample(link.ID, now), nil
	case <-ctx.Done():
		return models.FailedSample(link.ID, now), nil
	}
}
