package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/internal/orchestrator"
)

var sentimentMarks = map[models.Sentiment]string{
	models.SentimentPositive:   "+",
	models.SentimentConcerning: "!",
}

// Console writes a human-readable rendering of res.
func Console(w io.Writer, res *orchestrator.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Performance review: @%s in %s (%s)\n", res.Actor, res.Org, res.Range)
	fmt.Fprintf(&b, "Run %s\n\n", res.RunID)
	fmt.Fprintf(&b, "%s\n", res.Counts.String())
	if res.ExcludedOpen > 0 {
		fmt.Fprintf(&b, "%d open pull requests not assessed\n", res.ExcludedOpen)
	}

	if s := res.Summary; s != nil {
		section(&b, "Role", s.RoleSummary)
		section(&b, "Metrics", s.MetricsSummary)
		section(&b, "Narrative", s.PerformanceNarrative)
		list(&b, "Strengths", s.Strengths)
		list(&b, "Improvement areas", s.ImprovementAreas)

		b.WriteString("\nStandouts\n")
		for _, st := range s.Standouts {
			fmt.Fprintf(&b, "  [%s] %s\n      %s\n      %s\n", sentimentMarks[st.Sentiment], st.Title, st.URL, st.Reason)
		}
	} else {
		b.WriteString("\nNo contributions were assessed; no summary was produced.\n")
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped (%d)\n", len(res.Skipped))
		for _, sk := range res.Skipped {
			fmt.Fprintf(&b, "  %-9s %-20s %s\n", sk.Phase, sk.Cause, sk.Ref.URL)
		}
	}

	if len(res.FailedSearches) > 0 {
		fmt.Fprintf(&b, "\nFailed searches (%d)\n", len(res.FailedSearches))
		for _, fs := range res.FailedSearches {
			fmt.Fprintf(&b, "  %-10s %-12s %-12s %s\n", fs.Facet, fs.Kind, fs.Cause, fs.Query)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "\n%s\n  %s\n", title, strings.ReplaceAll(strings.TrimSpace(body), "\n", "\n  "))
}

func list(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n%s\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}
