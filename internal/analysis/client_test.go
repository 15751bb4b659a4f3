package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dsi-platform/screening-service/internal/config"
)

// setupMockAnalyzer starts an httptest server answering analysis calls.
func setupMockAnalyzer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(endpoint string, attempts int) *Client {
	c := NewClient(config.AnalysisConfig{
		Endpoint:       endpoint,
		TimeoutSeconds: 5,
		MaxAttempts:    attempts,
		RetryBackoffMS: 1,
	}, nil, nil)
	return c
}

func assertFallback(t *testing.T, out Outcome) {
	t.Helper()
	if !out.IsFallback() {
		t.Fatalf("expected fallback outcome, got %+v", out)
	}
	if !out.Verdict.FlaggedForReview || out.Verdict.FlagConfidence != 0.99 {
		t.Fatalf("fallback must flag with 0.99 confidence: %+v", out.Verdict)
	}
	if out.Verdict.ModelVersion != FallbackModelVersion {
		t.Fatalf("unexpected model version %q", out.Verdict.ModelVersion)
	}
	if len(out.Verdict.Indicators) != 1 || out.Verdict.Indicators[0].Indicator != "Analysis Error" {
		t.Fatalf("unexpected fallback indicators %+v", out.Verdict.Indicators)
	}
	if out.Cause == nil || !strings.Contains(out.Verdict.Indicators[0].Interpretation, out.Cause.Error()) {
		t.Fatalf("fallback interpretation must embed the cause")
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	server := setupMockAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["imageURL"] != "uploads/a.png" {
			t.Errorf("unexpected request body %v (%v)", req, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"flaggedForReview": false,
			"flagConfidence": 0.12,
			"psychIndicators": [{"indicator": "colour use", "evidence": ["bright"], "interpretation": "typical", "confidence": 0.4}],
			"modelVersion": "v2.3"
		}`))
	})

	out := newTestClient(server.URL, 2).Analyze(context.Background(), "uploads/a.png")
	if out.IsFallback() {
		t.Fatalf("unexpected fallback: %v", out.Cause)
	}
	if out.Verdict.FlaggedForReview || out.Verdict.ModelVersion != "v2.3" || len(out.Verdict.Indicators) != 1 {
		t.Fatalf("unexpected verdict %+v", out.Verdict)
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := setupMockAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"flaggedForReview": true, "flagConfidence": 0.7, "psychIndicators": [], "modelVersion": "v1"}`))
	})

	out := newTestClient(server.URL, 2).Analyze(context.Background(), "ref")
	if out.IsFallback() {
		t.Fatalf("expected recovery on retry, got %v", out.Cause)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestAnalyzeFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCalls int32
	}{
		{
			name: "persistent server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantCalls: 3,
		},
		{
			name: "client error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantCalls: 1,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
			wantCalls: 1,
		},
		{
			name: "missing flag",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"flagConfidence": 0.5}`))
			},
			wantCalls: 1,
		},
		{
			name: "confidence out of range",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"flaggedForReview": false, "flagConfidence": 1.5}`))
			},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := setupMockAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			})
			assertFallback(t, newTestClient(server.URL, 3).Analyze(context.Background(), "ref"))
			if calls.Load() != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := setupMockAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := newTestClient(server.URL, 1)
	client.timeout = 50 * time.Millisecond

	start := time.Now()
	out := client.Analyze(context.Background(), "ref")
	assertFallback(t, out)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestAnalyzeWithoutEndpoint(t *testing.T) {
	out := newTestClient("", 2).Analyze(context.Background(), "ref")
	assertFallback(t, out)
	if !errors.Is(out.Cause, ErrEndpointNotConfigured) {
		t.Fatalf("unexpected cause %v", out.Cause)
	}
}

func TestAnalyzeCanceledContextSkipsRetry(t *testing.T) {
	var calls atomic.Int32
	server := setupMockAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assertFallback(t, newTestClient(server.URL, 3).Analyze(ctx, "ref"))
	if calls.Load() != 0 {
		t.Fatalf("canceled context must not reach the endpoint, got %d calls", calls.Load())
	}
}
