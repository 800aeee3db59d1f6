package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/internal/orchestrator"
)

// Slack rejects section text longer than 3000 characters.
const maxSectionText = 2900

var sentimentEmoji = map[models.Sentiment]string{
	models.SentimentPositive:   ":large_green_circle:",
	models.SentimentConcerning: ":warning:",
}

// truncate shortens s to max chars, appending "…" if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func mrkdwn(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", truncate(text, maxSectionText), false, false),
		nil, nil,
	)
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "• %s\n", it)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// BuildSummaryBlocks renders a run result as Block Kit blocks.
func BuildSummaryBlocks(res *orchestrator.Result) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text",
			truncate(fmt.Sprintf("Performance review: %s (%s)", res.Actor, res.Org), 140), false, false)),
		mrkdwn(fmt.Sprintf("*Period:* %s\n*Contributions:* %s", res.Range, res.Counts.String())),
	}

	s := res.Summary
	if s == nil {
		blocks = append(blocks, mrkdwn("_No contributions were assessed for this period._"))
	} else {
		blocks = append(blocks,
			mrkdwn("*Role*\n"+s.RoleSummary),
			mrkdwn("*Metrics*\n"+s.MetricsSummary),
			mrkdwn("*Narrative*\n"+s.PerformanceNarrative),
			slack.NewDividerBlock(),
			mrkdwn("*Strengths*\n"+bullets(s.Strengths)),
			mrkdwn("*Areas for improvement*\n"+bullets(s.ImprovementAreas)),
			slack.NewDividerBlock(),
		)
		for _, st := range s.Standouts {
			blocks = append(blocks, mrkdwn(fmt.Sprintf("%s *<%s|%s>*\n%s",
				sentimentEmoji[st.Sentiment], st.URL, st.Title, st.Reason)))
		}
	}

	footer := fmt.Sprintf("run `%s`", res.RunID)
	if n := len(res.Skipped); n > 0 {
		footer += fmt.Sprintf(" · %d skipped", n)
	}
	if n := len(res.FailedSearches); n > 0 {
		footer += fmt.Sprintf(" · %d searches failed", n)
	}
	if res.ExcludedOpen > 0 {
		footer += fmt.Sprintf(" · %d open PRs excluded", res.ExcludedOpen)
	}
	blocks = append(blocks, slack.NewContextBlock("run_context",
		slack.NewTextBlockObject("mrkdwn", footer, false, false)))
	return blocks
}

// SummaryText is the plain-text fallback shown in notifications.
func SummaryText(res *orchestrator.Result) string {
	if res.Summary == nil {
		return fmt.Sprintf("Performance review for %s in %s (%s): nothing assessed", res.Actor, res.Org, res.Range)
	}
	return fmt.Sprintf("Performance review for %s in %s (%s): %d contributions", res.Actor, res.Org, res.Range, res.Counts.Total)
}
