package routectl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
	"github.com/steerstack/wansteer/internal/utils"
)

// HTTPApplier pushes directive sets to the router's management API. Transient
// failures are retried with backoff within the caller's context; the control
// loop never waits on the outcome.
type HTTPApplier struct {
	logger     *slog.Logger
	baseURL    string
	applyPath  string
	retries    int
	httpClient *http.Client
}

// NewHTTPApplier constructs an applier targeting the configured controller.
func NewHTTPApplier(cfg config.ControllerConfig, logger *slog.Logger) *HTTPApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPApplier{
		logger:    logger,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		applyPath: cfg.ApplyPath,
		retries:   cfg.Retries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
	}
}

// Apply POSTs the directive set, retrying transient failures with backoff.
func (a *HTTPApplier) Apply(ctx context.Context, set models.DirectiveSet) error {
	if a.baseURL == "" {
		return utils.NewAppError("routectl.Apply", "route controller base URL not configured", nil)
	}
	endpoint := a.applyURL()

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if lastErr = a.postJSON(ctx, endpoint, set); lastErr == nil {
			return nil
		}
		a.logger.Debug("directive apply attempt failed",
			slog.Int("attempt", attempt),
			slog.Uint64("cycle", set.Cycle),
			slog.Any("error", lastErr))
	}
	return utils.NewAppError("routectl.Apply", "apply directives", lastErr)
}

func (a *HTTPApplier) applyURL() string {
	cleaned := "/" + strings.TrimLeft(a.applyPath, "/")
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return a.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (a *HTTPApplier) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("route controller returned %s", resp.Status)
	}
	return nil
}

// NoopApplier discards directive sets. It backs dry-run mode, where the
// engine observes and decides but never touches the router.
type NoopApplier struct {
	logger *slog.Logger
}

// NewNoopApplier constructs a dry-run applier.
func NewNoopApplier(logger *slog.Logger) *NoopApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopApplier{logger: logger}
}

// Apply logs the directive set and reports success.
func (a *NoopApplier) Apply(_ context.Context, set models.DirectiveSet) error {
	a.logger.Info("dry-run directives",
		slog.Uint64("cycle", set.Cycle),
		slog.Int("links", len(set.Directives)))
	return nil
}
