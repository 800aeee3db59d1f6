package models

// Importance grades how much a contribution mattered.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Judgment is one graded dimension of an assessment.
type Judgment struct {
	Summary    string     `json:"summary" yaml:"summary"`
	Importance Importance `json:"importance" yaml:"importance"`
}

// Assessment is the structured output of the analysis collaborator.
type Assessment struct {
	Role               Role     `json:"role" yaml:"role"`
	Impact             Judgment `json:"impact" yaml:"impact"`
	TechnicalQuality   Judgment `json:"technical_quality" yaml:"technical_quality"`
	Collaboration      Judgment `json:"collaboration" yaml:"collaboration"`
	AlignmentWithGoals Judgment `json:"alignment_with_goals" yaml:"alignment_with_goals"`
	ReferencedURLs     []string `json:"referenced_urls" yaml:"referenced_urls"`
}

// Record is an accepted assessment of one contribution on behalf of one actor.
type Record struct {
	Actor      string `json:"actor" yaml:"actor"`
	Ref        Ref    `json:"ref" yaml:"ref"`
	Assessment `yaml:",inline"`
}

// Key returns the identity of the judged contribution.
func (r Record) Key() Key { return r.Ref.Key() }

// Judgments returns the four graded dimensions in a fixed order.
func (a Assessment) Judgments() []Judgment {
	return []Judgment{a.Impact, a.TechnicalQuality, a.Collaboration, a.AlignmentWithGoals}
}

// Lean classifies an assessment as a positive or concerning standout
// candidate by comparing high against low importance judgments. The
// second result is false when the assessment leans neither way.
func (a Assessment) Lean() (Sentiment, bool) {
	score := 0
	for _, j := range a.Judgments() {
		switch j.Importance {
		case ImportanceHigh:
			score++
		case ImportanceLow:
			score--
		}
	}
	switch {
	case score > 0:
		return SentimentPositive, true
	case score < 0:
		return SentimentConcerning, true
	}
	return "", false
}
