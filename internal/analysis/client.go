package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/config"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/observability"
)

const maxResponseBytes = 1 << 20

// ErrEndpointNotConfigured is the fallback cause when no endpoint is set.
var ErrEndpointNotConfigured = errors.New("analysis endpoint not configured")

// Analyzer turns an artifact reference into a verdict. Implementations never fail;
// errors surface as fallback outcomes.
type Analyzer interface {
	Analyze(ctx context.Context, artifactRef string) Outcome
}

// Client calls the external analysis endpoint over HTTP.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	timeout     time.Duration
	backoff     time.Duration
	maxAttempts int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewClient builds an analysis client from configuration.
func NewClient(cfg config.AnalysisConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		httpClient:  &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 4}},
		timeout:     cfg.Timeout(),
		backoff:     cfg.RetryBackoff(),
		maxAttempts: attempts,
		logger:      logger.Named("analysis"),
		metrics:     metrics,
	}
}

type analyzeRequest struct {
	ImageURL string `json:"imageURL"`
}

type analyzeResponse struct {
	FlaggedForReview *bool              `json:"flaggedForReview"`
	FlagConfidence   float64            `json:"flagConfidence"`
	Indicators       []domain.Indicator `json:"psychIndicators"`
	ModelVersion     string             `json:"modelVersion"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("analysis endpoint returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// Analyze posts the artifact reference and returns the verdict, or a fallback
// outcome once every attempt has failed.
func (c *Client) Analyze(ctx context.Context, artifactRef string) Outcome {
	start := time.Now()
	outcome := c.analyze(ctx, artifactRef)
	c.metrics.RecordAnalysis(outcome.IsFallback(), time.Since(start))
	if outcome.IsFallback() {
		c.logger.Warn("analysis failed; using fallback verdict",
			zap.String("artifact_ref", artifactRef),
			zap.Error(outcome.Cause),
		)
	}
	return outcome
}

func (c *Client) analyze(ctx context.Context, artifactRef string) Outcome {
	if c.endpoint == "" {
		return Fallback(ErrEndpointNotConfigured)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		verdict, err := c.attempt(ctx, artifactRef)
		if err == nil {
			return Outcome{Verdict: verdict, Kind: OutcomeOK}
		}
		lastErr = err
		if !shouldRetry(ctx, err) || attempt == c.maxAttempts {
			break
		}

		c.logger.Debug("retrying analysis",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Fallback(ctx.Err())
		case <-time.After(c.backoff):
		}
	}
	return Fallback(lastErr)
}

func (c *Client) attempt(ctx context.Context, artifactRef string) (domain.Verdict, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(analyzeRequest{ImageURL: artifactRef})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("encode analysis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("call analysis endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Verdict{}, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Verdict{}, &malformedError{reason: err.Error()}
	}
	return decoded.toVerdict()
}

type malformedError struct {
	reason string
}

func (e *malformedError) Error() string {
	return "malformed analysis response: " + e.reason
}

func (r analyzeResponse) toVerdict() (domain.Verdict, error) {
	if r.FlaggedForReview == nil {
		return domain.Verdict{}, &malformedError{reason: "missing flaggedForReview"}
	}
	if !inUnitRange(r.FlagConfidence) {
		return domain.Verdict{}, &malformedError{reason: fmt.Sprintf("flagConfidence %v out of range", r.FlagConfidence)}
	}
	for _, indicator := range r.Indicators {
		if !inUnitRange(indicator.Confidence) {
			return domain.Verdict{}, &malformedError{reason: fmt.Sprintf("indicator %q confidence %v out of range", indicator.Indicator, indicator.Confidence)}
		}
	}
	return domain.Verdict{
		FlaggedForReview: *r.FlaggedForReview,
		FlagConfidence:   r.FlagConfidence,
		Indicators:       r.Indicators,
		ModelVersion:     r.ModelVersion,
	}, nil
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	var malformed *malformedError
	return !errors.As(err, &malformed)
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
