package assess

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/llm"
	"github.com/p-blackswan/perfreview/internal/metrics"
	"github.com/p-blackswan/perfreview/internal/models"
)

const stageSummary = "summary"

// SummaryRequest is the input of the once-per-run executive summary.
type SummaryRequest struct {
	Actor           string
	Analyses        []models.Record
	RoleDescription string
	Counts          metrics.Counts
}

// Summarizer writes the executive summary of a run. It is called once per
// run; a failure aborts the run.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (models.ExecutiveSummary, error)
}

// LLMSummarizer is the language-model backed Summarizer.
type LLMSummarizer struct {
	provider llm.Provider
	logger   zerolog.Logger
}

// NewLLMSummarizer returns a summarizer using provider.
func NewLLMSummarizer(provider llm.Provider, logger zerolog.Logger) *LLMSummarizer {
	return &LLMSummarizer{
		provider: provider,
		logger:   logger.With().Str("component", "assess.summarizer").Logger(),
	}
}

// Summarize makes a single collaborator call and validates the result with CheckSummary.
func (s *LLMSummarizer) Summarize(ctx context.Context, req SummaryRequest) (models.ExecutiveSummary, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		Messages:     []llm.Message{llm.UserMessage(renderSummaryPrompt(req))},
		Tools:        []llm.ToolSchema{summaryOutput.tool},
		ForceTool:    summaryTool,
	})
	if err != nil {
		return models.ExecutiveSummary{}, fmt.Errorf("summarize: %w", err)
	}

	var out models.ExecutiveSummary
	if err := summaryOutput.decode(stageSummary, resp.StructuredOutput(summaryTool), &out); err != nil {
		return models.ExecutiveSummary{}, fmt.Errorf("summarize: %w", err)
	}
	if err := CheckSummary(out, req.Analyses); err != nil {
		return models.ExecutiveSummary{}, fmt.Errorf("summarize: %w", err)
	}
	s.logger.Debug().Int("standouts", len(out.Standouts)).Msg("summary accepted")
	return out, nil
}

// CheckSummary enforces the rules a schema cannot express on its own:
// exactly two strengths and two improvement areas, one to three standouts
// drawn from the analyzed contributions, and both sentiments represented
// whenever the analyses lean both ways.
func CheckSummary(sum models.ExecutiveSummary, analyses []models.Record) error {
	var problems []string
	for _, f := range []struct{ name, value string }{
		{"role_summary", sum.RoleSummary},
		{"metrics_summary", sum.MetricsSummary},
		{"performance_narrative", sum.PerformanceNarrative},
	} {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is empty")
		}
	}
	if n := countNonEmpty(sum.Strengths); n != 2 || len(sum.Strengths) != 2 {
		problems = append(problems, fmt.Sprintf("want exactly 2 strengths, got %d", len(sum.Strengths)))
	}
	if n := countNonEmpty(sum.ImprovementAreas); n != 2 || len(sum.ImprovementAreas) != 2 {
		problems = append(problems, fmt.Sprintf("want exactly 2 improvement areas, got %d", len(sum.ImprovementAreas)))
	}
	if n := len(sum.Standouts); n < 1 || n > 3 {
		problems = append(problems, fmt.Sprintf("want 1 to 3 standouts, got %d", n))
	}

	known := make(map[string]bool, len(analyses))
	candidates := map[models.Sentiment]bool{}
	for _, r := range analyses {
		known[r.Ref.URL] = true
		if s, ok := r.Lean(); ok {
			candidates[s] = true
		}
	}

	present := map[models.Sentiment]bool{}
	for i, st := range sum.Standouts {
		switch st.Sentiment {
		case models.SentimentPositive, models.SentimentConcerning:
			present[st.Sentiment] = true
		default:
			problems = append(problems, fmt.Sprintf("standout %d: unknown sentiment %q", i, st.Sentiment))
		}
		if !known[st.URL] {
			problems = append(problems, fmt.Sprintf("standout %d: %s was not analyzed", i, st.URL))
		}
	}

	if candidates[models.SentimentPositive] && candidates[models.SentimentConcerning] {
		for _, s := range []models.Sentiment{models.SentimentPositive, models.SentimentConcerning} {
			if !present[s] {
				problems = append(problems, fmt.Sprintf("no %s standout although %s candidates exist", s, s))
			}
		}
	}

	if len(problems) > 0 {
		return perrors.NewValidationError(stageSummary, problems...)
	}
	return nil
}

func countNonEmpty(items []string) int {
	n := 0
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}
