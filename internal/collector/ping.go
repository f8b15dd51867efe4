package collector

import (
	"context"
	"math"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

var (
	pingLossRe = regexp.MustCompile(`([0-9.]+)% packet loss`)
	pingRttRe  = regexp.MustCompile(`= ([0-9.]+)/`)
)

// PingProber measures latency and loss with the system ping binary, falling
// back to a TCP connect when ping is unavailable. Probe failures are reported
// as failed samples, never as errors.
type PingProber struct {
	// FallbackPort is dialled when ping itself fails; defaults to 80.
	FallbackPort string
}

// NewPingProber returns a prober using ICMP ping with a TCP fallback.
func NewPingProber() *PingProber {
	return &PingProber{FallbackPort: "80"}
}

// Probe runs one measurement against the link's target.
func (p *PingProber) Probe(ctx context.Context, link config.LinkConfig) (models.MeasurementSample, error) {
	now := time.Now()

	waitSecs := int(math.Ceil(link.Timeout.Std().Seconds()))
	if waitSecs < 1 {
		waitSecs = 1
	}

	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(waitSecs), link.Target)
	out, err := cmd.CombinedOutput()
	if err == nil {
		lat, latOK := parsePingLatency(string(out))
		loss, lossOK := parsePingLoss(string(out))
		if latOK || lossOK {
			return models.MeasurementSample{
				LinkID: link.ID,
				Values: map[models.Metric]float64{
					models.MetricLatencyMs: lat,
					models.MetricLossRatio: loss / 100,
				},
				Success:   true,
				Timestamp: now,
			}, nil
		}
	}

	// Best-effort fallback: measure a TCP connect to the target.
	port := p.FallbackPort
	if port == "" {
		port = "80"
	}
	start := time.Now()
	var d net.Dialer
	conn, dialErr := d.DialContext(ctx, "tcp", net.JoinHostPort(link.Target, port))
	if dialErr != nil {
		return models.FailedSample(link.ID, now), nil
	}
	_ = conn.Close()

	return models.MeasurementSample{
		LinkID: link.ID,
		Values: map[models.Metric]float64{
			models.MetricLatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			models.MetricLossRatio: 0,
		},
		Success:   true,
		Timestamp: now,
	}, nil
}

func parsePingLoss(s string) (float64, bool) {
	m := pingLossRe.FindStringSubmatch(s)
	if len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func parsePingLatency(s string) (float64, bool) {
	m := pingRttRe.FindStringSubmatch(s)
	if len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
