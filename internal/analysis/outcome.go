package analysis

import "github.com/dsi-platform/screening-service/internal/domain"

// FallbackModelVersion marks verdicts synthesized after a failed analysis call.
const FallbackModelVersion = "error-fallback-v1.0"

// OutcomeKind distinguishes real verdicts from synthesized ones.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeFallback
)

func (k OutcomeKind) String() string {
	if k == OutcomeFallback {
		return "fallback"
	}
	return "ok"
}

// Outcome is the result of one Analyze call. Cause is set only for fallbacks.
type Outcome struct {
	Verdict domain.Verdict
	Kind    OutcomeKind
	Cause   error
}

// IsFallback reports whether the verdict was synthesized after a failure.
func (o Outcome) IsFallback() bool {
	return o.Kind == OutcomeFallback
}

// Fallback builds the conservative verdict used when analysis fails: the case is
// flagged so a human looks at it.
func Fallback(cause error) Outcome {
	interpretation := "unknown error"
	if cause != nil {
		interpretation = cause.Error()
	}
	return Outcome{
		Kind:  OutcomeFallback,
		Cause: cause,
		Verdict: domain.Verdict{
			FlaggedForReview: true,
			FlagConfidence:   0.99,
			Indicators: []domain.Indicator{{
				Indicator:      "Analysis Error",
				Evidence:       []string{"The ML/LLM API service failed to process the request."},
				Interpretation: interpretation,
				Confidence:     1.0,
			}},
			ModelVersion: FallbackModelVersion,
		},
	}
}
