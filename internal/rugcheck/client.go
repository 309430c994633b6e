package rugcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.rugcheck.xyz/v1"
	DefaultTimeout = 10 * time.Second
	DefaultDelay   = 1000 * time.Millisecond
	userAgent      = "Solana-Token-Bot/1.0"
)

// Client queries the RugCheck token report API. Every call waits a fixed delay first;
// there is no retry, a failed call yields a nil report.
type Client struct {
	baseURL  string
	delay    time.Duration
	client   *http.Client
	logger   *logger.Logger
	recorder models.ErrorRecorder
	metrics  *metrics.ScoutMetrics
	sleepFor func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func WithMetrics(m *metrics.ScoutMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(logger *logger.Logger, recorder models.ErrorRecorder, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		delay:    DefaultDelay,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
		recorder: recorder,
		sleepFor: sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Check returns the risk report for a mint, or nil when it cannot be obtained.
// 404 and 429 are expected and only logged as warnings; anything else is recorded
// in the error log.
func (c *Client) Check(ctx context.Context, address string) *models.RiskReport {
	if err := c.sleepFor(ctx, c.delay); err != nil {
		return nil
	}

	c.logger.Debug("Checking rug risk", "mint", address)
	start := time.Now()
	report, outcome, err := c.fetch(ctx, address)
	c.observe(outcome, time.Since(start))

	switch outcome {
	case metrics.OutcomeOK:
		c.logger.Info("RugCheck result", "mint", address, "score", report.Score, "risks", len(report.Risks))
		return report
	case metrics.OutcomeNotFound:
		c.logger.Warn("Token not found in RugCheck database", "mint", address)
	case metrics.OutcomeRateLimited:
		c.logger.Warn("Rate limited by RugCheck API", "mint", address)
	default:
		if ctx.Err() != nil {
			return nil
		}
		c.recorder.Record(fmt.Sprintf("RugCheck API error for %s", address), err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, address string) (*models.RiskReport, string, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s/report/summary", c.baseURL, url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, metrics.OutcomeNotFound, nil
	case http.StatusTooManyRequests:
		return nil, metrics.OutcomeRateLimited, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, metrics.OutcomeError, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var report models.RiskReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, metrics.OutcomeOK, nil
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.OracleRequests.WithLabelValues(outcome).Inc()
	c.metrics.OracleLatency.Observe(elapsed.Seconds())
}

// CheckBatch checks each address in order, one at a time. Each call applies the fixed
// delay itself, so items are spaced by at least that delay. onProgress, when set, runs
// after every item. The result has one entry per address, nil where no report was obtained.
func (c *Client) CheckBatch(ctx context.Context, addresses []string, onProgress func(done, total int)) []*models.RiskReport {
	reports := make([]*models.RiskReport, len(addresses))
	for i, address := range addresses {
		if ctx.Err() != nil {
			break
		}
		reports[i] = c.Check(ctx, address)
		if onProgress != nil {
			onProgress(i+1, len(addresses))
		}
	}
	return reports
}
