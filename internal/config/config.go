package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steerstack/wansteer/internal/models"
)

// Duration wraps time.Duration so YAML configs can use human-readable values
// like "500ms" or "10s".
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CombinePolicy selects how per-metric tiers merge into one link tier.
type CombinePolicy string

const (
	// CombineWorst classifies the link by its worst metric.
	CombineWorst CombinePolicy = "worst"
	// CombineAll requires every metric to agree before the link is congested.
	CombineAll CombinePolicy = "all"
)

// SteeringPolicy selects what a congested link's directive looks like.
type SteeringPolicy string

const (
	// PolicyDemote keeps congested links enabled at weight zero.
	PolicyDemote SteeringPolicy = "demote"
	// PolicyDisable marks congested links disabled outright.
	PolicyDisable SteeringPolicy = "disable"
)

// ProbeKind selects the prober implementation for a link.
type ProbeKind string

const (
	ProbePing ProbeKind = "ping"
	ProbeSTUN ProbeKind = "stun"
)

// Config captures the full daemon configuration.
type Config struct {
	Loop       LoopConfig       `yaml:"loop"`
	Smoothing  SmoothingConfig  `yaml:"smoothing"`
	Classify   ClassifyConfig   `yaml:"classify"`
	Steering   SteeringConfig   `yaml:"steering"`
	Links      []LinkConfig     `yaml:"links"`
	Controller ControllerConfig `yaml:"controller"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoopConfig controls the control-loop scheduler.
type LoopConfig struct {
	Interval Duration `yaml:"interval"`
	// DeadlineFraction bounds measurement collection to a fraction of the
	// interval, leaving the rest of the tick for the decision pipeline.
	DeadlineFraction float64 `yaml:"deadlineFraction"`
}

// SmoothingConfig holds the real-time constants that the tuning adapter
// converts into per-cycle parameters whenever the interval changes.
type SmoothingConfig struct {
	TimeConstant        Duration `yaml:"timeConstant"`
	ConfirmCongested    Duration `yaml:"confirmCongested"`
	ConfirmClear        Duration `yaml:"confirmClear"`
	MissedSampleCeiling int      `yaml:"missedSampleCeiling"`
}

// ClassifyConfig controls multi-metric tier combination.
type ClassifyConfig struct {
	Combine CombinePolicy `yaml:"combine"`
}

// SteeringConfig controls directive emission.
type SteeringConfig struct {
	Policy      SteeringPolicy `yaml:"policy"`
	TotalWeight int            `yaml:"totalWeight"`
}

// ThresholdBand is an entry/recovery threshold pair for one metric. All
// tracked metrics are higher-is-worse, so recovery must sit strictly below
// entry.
type ThresholdBand struct {
	Entry    float64 `yaml:"entry"`
	Recovery float64 `yaml:"recovery"`
}

// LinkConfig describes one managed uplink.
type LinkConfig struct {
	ID         string                          `yaml:"id"`
	Probe      ProbeKind                       `yaml:"probe"`
	Target     string                          `yaml:"target"`
	Timeout    Duration                        `yaml:"timeout"`
	Retries    int                             `yaml:"retries"`
	Thresholds map[models.Metric]ThresholdBand `yaml:"thresholds"`
}

// ControllerConfig configures the downstream route-controller client.
type ControllerConfig struct {
	BaseURL   string   `yaml:"baseURL"`
	ApplyPath string   `yaml:"applyPath"`
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
	DryRun    bool     `yaml:"dryRun"`
}

// ServerConfig controls the HTTP status listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	GracefulTimeout Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file plus environment overrides, then
// validates it. Unknown (including retired) field names are rejected by the
// decoder rather than ignored.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WANSTEER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Loop: LoopConfig{
			Interval:         Duration(500 * time.Millisecond),
			DeadlineFraction: 0.8,
		},
		Smoothing: SmoothingConfig{
			TimeConstant:        Duration(10 * time.Second),
			ConfirmCongested:    Duration(6 * time.Second),
			ConfirmClear:        Duration(20 * time.Second),
			MissedSampleCeiling: 3,
		},
		Classify: ClassifyConfig{Combine: CombineWorst},
		Steering: SteeringConfig{Policy: PolicyDemote, TotalWeight: 100},
		Controller: ControllerConfig{
			ApplyPath: "/api/v1/routes/apply",
			Timeout:   Duration(2 * time.Second),
			Retries:   2,
		},
		Server: ServerConfig{
			Address:         ":9640",
			GracefulTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WANSTEER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("WANSTEER_CONTROLLER_BASE_URL"); v != "" {
		cfg.Controller.BaseURL = v
	}
	if v := os.Getenv("WANSTEER_LOOP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Loop.Interval = Duration(d)
		}
	}
	if v := os.Getenv("WANSTEER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WANSTEER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("WANSTEER_DRY_RUN"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Controller.DryRun = true
	}
}

// Validate rejects configurations the control loop must never run with.
func (c *Config) Validate() error {
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive, got %s", c.Loop.Interval.Std())
	}
	if c.Loop.DeadlineFraction <= 0 || c.Loop.DeadlineFraction > 1 {
		return fmt.Errorf("loop.deadlineFraction must be in (0,1], got %v", c.Loop.DeadlineFraction)
	}
	if c.Smoothing.TimeConstant <= 0 {
		return fmt.Errorf("smoothing.timeConstant must be positive")
	}
	if c.Smoothing.ConfirmCongested <= 0 {
		return fmt.Errorf("smoothing.confirmCongested must be positive")
	}
	if c.Smoothing.ConfirmClear <= 0 {
		return fmt.Errorf("smoothing.confirmClear must be positive")
	}
	if c.Smoothing.MissedSampleCeiling < 1 {
		return fmt.Errorf("smoothing.missedSampleCeiling must be at least 1, got %d", c.Smoothing.MissedSampleCeiling)
	}

	switch c.Classify.Combine {
	case CombineWorst, CombineAll:
	default:
		return fmt.Errorf("classify.combine must be %q or %q, got %q", CombineWorst, CombineAll, c.Classify.Combine)
	}
	switch c.Steering.Policy {
	case PolicyDemote, PolicyDisable:
	default:
		return fmt.Errorf("steering.policy must be %q or %q, got %q", PolicyDemote, PolicyDisable, c.Steering.Policy)
	}
	if c.Steering.TotalWeight < 1 {
		return fmt.Errorf("steering.totalWeight must be at least 1, got %d", c.Steering.TotalWeight)
	}

	if len(c.Links) == 0 {
		return fmt.Errorf("at least one link is required")
	}
	seen := make(map[string]struct{}, len(c.Links))
	tracked := make(map[models.Metric]struct{}, len(models.Metrics()))
	for _, m := range models.Metrics() {
		tracked[m] = struct{}{}
	}
	for i, link := range c.Links {
		if link.ID == "" {
			return fmt.Errorf("links[%d]: id must not be empty", i)
		}
		if _, dup := seen[link.ID]; dup {
			return fmt.Errorf("links[%d]: duplicate id %q", i, link.ID)
		}
		seen[link.ID] = struct{}{}

		switch link.Probe {
		case ProbePing, ProbeSTUN:
		default:
			return fmt.Errorf("link %s: probe must be %q or %q, got %q", link.ID, ProbePing, ProbeSTUN, link.Probe)
		}
		if link.Target == "" {
			return fmt.Errorf("link %s: target must not be empty", link.ID)
		}
		if link.Timeout <= 0 {
			return fmt.Errorf("link %s: timeout must be positive", link.ID)
		}
		if link.Retries < 0 {
			return fmt.Errorf("link %s: retries must not be negative", link.ID)
		}
		if len(link.Thresholds) == 0 {
			return fmt.Errorf("link %s: at least one metric threshold is required", link.ID)
		}
		for metric, band := range link.Thresholds {
			if _, ok := tracked[metric]; !ok {
				return fmt.Errorf("link %s: unknown metric %q", link.ID, metric)
			}
			if band.Entry <= 0 {
				return fmt.Errorf("link %s: %s entry threshold must be positive", link.ID, metric)
			}
			if band.Recovery < 0 {
				return fmt.Errorf("link %s: %s recovery threshold must not be negative", link.ID, metric)
			}
			if band.Recovery >= band.Entry {
				return fmt.Errorf("link %s: %s recovery threshold (%v) must be strictly below entry (%v)",
					link.ID, metric, band.Recovery, band.Entry)
			}
		}
	}

	if !c.Controller.DryRun && c.Controller.BaseURL == "" {
		return fmt.Errorf("controller.baseURL is required unless controller.dryRun is set")
	}
	if c.Controller.Timeout <= 0 {
		return fmt.Errorf("controller.timeout must be positive")
	}
	if c.Controller.Retries < 0 {
		return fmt.Errorf("controller.retries must not be negative")
	}
	return nil
}

// LinkIDs returns the configured link identifiers in declaration order.
func (c *Config) LinkIDs() []string {
	ids := make([]string, 0, len(c.Links))
	for _, link := range c.Links {
		ids = append(ids, link.ID)
	}
	return ids
}
