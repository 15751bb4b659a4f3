package domain

// Indicator is a single finding reported by the analysis capability.
type Indicator struct {
	Indicator      string   `json:"indicator"`
	Evidence       []string `json:"evidence"`
	Interpretation string   `json:"interpretation"`
	Confidence     float64  `json:"confidence"`
}

// Verdict is the structured output of the analysis capability.
type Verdict struct {
	FlaggedForReview bool        `json:"flaggedForReview"`
	FlagConfidence   float64     `json:"flagConfidence"`
	Indicators       []Indicator `json:"psychIndicators"`
	ModelVersion     string      `json:"modelVersion"`
}
