package models

// Sentiment tags a standout contribution.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentConcerning Sentiment = "concerning"
)

// Standout is a contribution called out in the executive summary.
type Standout struct {
	URL       string    `json:"url" yaml:"url"`
	Title     string    `json:"title" yaml:"title"`
	Sentiment Sentiment `json:"sentiment" yaml:"sentiment"`
	Reason    string    `json:"reason" yaml:"reason"`
}

// ExecutiveSummary is the final narrative produced once per run.
type ExecutiveSummary struct {
	RoleSummary          string     `json:"role_summary" yaml:"role_summary"`
	MetricsSummary       string     `json:"metrics_summary" yaml:"metrics_summary"`
	PerformanceNarrative string     `json:"performance_narrative" yaml:"performance_narrative"`
	Strengths            []string   `json:"strengths" yaml:"strengths"`
	ImprovementAreas     []string   `json:"improvement_areas" yaml:"improvement_areas"`
	Standouts            []Standout `json:"standouts" yaml:"standouts"`
}
