package assess

import (
	"fmt"
	"strings"

	"github.com/p-blackswan/perfreview/internal/models"
)

const maxBodyChars = 4000

const analysisSystemPrompt = `You are assisting with a performance review. You will be shown one GitHub
contribution and the role description of the person under review. Judge only that
person's part in the contribution. Ground every judgment in the text you were given.
Only reference URLs that appear in the contribution. Answer by calling the tool.`

const summarySystemPrompt = `You are writing the executive summary of a performance review from per-contribution
assessments and contribution counts. Give exactly two strengths and exactly two
improvement areas. Pick one to three standout contributions from the assessed URLs and
tag each positive or concerning; when some assessments lean positive and others lean
concerning, include at least one of each. Answer by calling the tool.`

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBodyChars {
		return s
	}
	return s[:maxBodyChars] + "\n[truncated]"
}

func writeComments(b *strings.Builder, comments []models.Comment, indent string) {
	for _, c := range comments {
		fmt.Fprintf(b, "%s- @%s (%s): %s\n", indent, c.Author, c.CreatedAt.Format("2006-01-02"), clip(c.Body))
		writeComments(b, c.Replies, indent+"  ")
	}
}

func renderAnalysisPrompt(req AnalysisRequest) string {
	d := req.Detail
	var b strings.Builder

	if req.RoleDescription != "" {
		fmt.Fprintf(&b, "## Role description\n%s\n\n", strings.TrimSpace(req.RoleDescription))
	}
	fmt.Fprintf(&b, "## Person under review\n@%s, role on this item: %s\n\n", req.Actor, d.Ref.Role)
	fmt.Fprintf(&b, "## %s %s\n", d.Ref.Type, d.Ref.URL)
	fmt.Fprintf(&b, "Title: %s\nAuthor: @%s\nState: %s\nCreated: %s\nUpdated: %s\n\n",
		d.Title, d.Author, d.State, d.CreatedAt.Format("2006-01-02"), d.UpdatedAt.Format("2006-01-02"))
	if body := clip(d.Body); body != "" {
		fmt.Fprintf(&b, "### Body\n%s\n\n", body)
	}
	if len(d.Comments) > 0 {
		b.WriteString("### Comments\n")
		writeComments(&b, d.Comments, "")
		b.WriteString("\n")
	}
	if len(d.Reviews) > 0 {
		b.WriteString("### Reviews\n")
		for _, r := range d.Reviews {
			fmt.Fprintf(&b, "- @%s %s: %s\n", r.Author, r.State, clip(r.Body))
			writeComments(&b, r.Comments, "  ")
		}
		b.WriteString("\n")
	}
	if len(d.Commits) > 0 {
		b.WriteString("### Commits\n")
		for _, c := range d.Commits {
			subject, _, _ := strings.Cut(c.Message, "\n")
			fmt.Fprintf(&b, "- %.7s +%d -%d (%d files) %s\n", c.SHA, c.Additions, c.Deletions, len(c.ChangedFiles), subject)
		}
	}
	return b.String()
}

func writeJudgment(b *strings.Builder, name string, j models.Judgment) {
	fmt.Fprintf(b, "  %s [%s]: %s\n", name, j.Importance, j.Summary)
}

func renderSummaryPrompt(req SummaryRequest) string {
	var b strings.Builder
	if req.RoleDescription != "" {
		fmt.Fprintf(&b, "## Role description\n%s\n\n", strings.TrimSpace(req.RoleDescription))
	}
	fmt.Fprintf(&b, "## Person under review\n@%s\n\n", req.Actor)
	fmt.Fprintf(&b, "## Metrics\n%s\n\n", req.Counts.String())
	b.WriteString("## Assessments\n")
	for _, r := range req.Analyses {
		title := r.Ref.Title
		if title == "" {
			title = r.Key().String()
		}
		fmt.Fprintf(&b, "- %s (%s, %s as %s)\n", r.Ref.URL, title, r.Ref.Type, r.Role)
		writeJudgment(&b, "impact", r.Impact)
		writeJudgment(&b, "technical quality", r.TechnicalQuality)
		writeJudgment(&b, "collaboration", r.Collaboration)
		writeJudgment(&b, "alignment", r.AlignmentWithGoals)
	}
	return b.String()
}
