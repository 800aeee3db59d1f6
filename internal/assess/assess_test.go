package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/llm"
	"github.com/p-blackswan/perfreview/internal/locator"
	"github.com/p-blackswan/perfreview/internal/metrics"
	"github.com/p-blackswan/perfreview/internal/models"
)

// scriptedProvider answers each Complete call with the next tool input.
type scriptedProvider struct {
	inputs   []string
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.inputs) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	if in == "" {
		return &llm.CompletionResponse{StopReason: llm.StopReasonEndTurn, Text: "I would rather not."}, nil
	}
	return &llm.CompletionResponse{
		StopReason: llm.StopReasonToolUse,
		ToolUse:    &llm.ToolUse{ID: "tu_1", Name: req.ForceTool, Input: json.RawMessage(in)},
	}, nil
}

func (p *scriptedProvider) ModelID() string { return "scripted" }

func testDetail() models.Detail {
	return models.Detail{
		Ref: models.Ref{
			URL: "https://github.com/acme/widgets/pull/7", Type: models.TypePullRequest,
			Owner: "acme", Repo: "widgets", Number: 7, Role: models.RoleAuthor,
		},
		Title:    "Add cache",
		Body:     "Adds a read-through cache.",
		State:    "MERGED",
		Author:   "octocat",
		Merged:   true,
		Comments: []models.Comment{{Author: "hubot", Body: "Nice work"}},
		Commits:  []models.CommitStat{{SHA: "abcdef1234", Message: "add cache\n\nlong body", Additions: 10, Deletions: 2}},
	}
}

const validAssessment = `{
	"role": "author",
	"impact": {"summary": "Cut p99 latency in half.", "importance": "high"},
	"technical_quality": {"summary": "Well tested.", "importance": "high"},
	"collaboration": {"summary": "Responsive to review.", "importance": "medium"},
	"alignment_with_goals": {"summary": "On the roadmap.", "importance": "medium"},
	"referenced_urls": [
		"https://github.com/acme/widgets/issues/3",
		"https://example.com/blog",
		"https://github.com/acme/widgets/issues/3"
	]
}`

func TestLLMAnalyzer_Analyze(t *testing.T) {
	provider := &scriptedProvider{inputs: []string{validAssessment}}
	a := NewLLMAnalyzer(provider, locator.NewParser("github.com"), zerolog.Nop())

	got, err := a.Analyze(context.Background(), AnalysisRequest{
		Actor:           "octocat",
		Detail:          testDetail(),
		RoleDescription: "Senior backend engineer",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAuthor, got.Role)
	assert.Equal(t, models.ImportanceHigh, got.Impact.Importance)
	assert.Equal(t, []string{"https://github.com/acme/widgets/issues/3"}, got.ReferencedURLs)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, assessmentTool, req.ForceTool)
	require.Len(t, req.Tools, 1)
	assert.Contains(t, string(req.Tools[0].InputSchema), `"technical_quality"`)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Senior backend engineer")
	assert.Contains(t, prompt, "Add cache")
	assert.Contains(t, prompt, "abcdef1 +10 -2 (0 files) add cache")
}

func TestLLMAnalyzer_RejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no tool call", input: ""},
		{name: "missing field", input: `{"role":"author","impact":{"summary":"x","importance":"high"}}`},
		{name: "bad importance", input: `{
			"role": "author",
			"impact": {"summary": "x", "importance": "enormous"},
			"technical_quality": {"summary": "x", "importance": "high"},
			"collaboration": {"summary": "x", "importance": "high"},
			"alignment_with_goals": {"summary": "x", "importance": "high"},
			"referenced_urls": []
		}`},
		{name: "bad role", input: `{
			"role": "bystander",
			"impact": {"summary": "x", "importance": "low"},
			"technical_quality": {"summary": "x", "importance": "low"},
			"collaboration": {"summary": "x", "importance": "low"},
			"alignment_with_goals": {"summary": "x", "importance": "low"},
			"referenced_urls": []
		}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewLLMAnalyzer(&scriptedProvider{inputs: []string{tt.input}}, locator.NewParser(""), zerolog.Nop())
			_, err := a.Analyze(context.Background(), AnalysisRequest{Actor: "octocat", Detail: testDetail()})
			require.Error(t, err)
			assert.True(t, perrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestFilterURLs(t *testing.T) {
	p := locator.NewParser("github.com")
	got := FilterURLs(p, []string{
		"https://github.com/a/b/pull/1",
		"http://GITHUB.com/a/b/issues/2",
		"https://gist.github.com/x",
		"not a url at all",
		"https://github.com/a/b/pull/1",
	})
	assert.Equal(t, []string{"https://github.com/a/b/pull/1", "http://GITHUB.com/a/b/issues/2"}, got)
}

func judged(i models.Importance) models.Judgment {
	return models.Judgment{Summary: "evidence", Importance: i}
}

func record(n int, lean models.Importance) models.Record {
	return models.Record{
		Actor: "octocat",
		Ref: models.Ref{
			URL: fmt.Sprintf("https://github.com/acme/widgets/pull/%d", n), Type: models.TypePullRequest,
			Owner: "acme", Repo: "widgets", Number: n, Title: fmt.Sprintf("PR %d", n), Role: models.RoleAuthor,
		},
		Assessment: models.Assessment{
			Role:               models.RoleAuthor,
			Impact:             judged(lean),
			TechnicalQuality:   judged(lean),
			Collaboration:      judged(models.ImportanceMedium),
			AlignmentWithGoals: judged(models.ImportanceMedium),
		},
	}
}

// fiveAnalyses returns three positive-leaning and two concerning-leaning records.
func fiveAnalyses() []models.Record {
	return []models.Record{
		record(1, models.ImportanceHigh),
		record(2, models.ImportanceHigh),
		record(3, models.ImportanceHigh),
		record(4, models.ImportanceLow),
		record(5, models.ImportanceLow),
	}
}

func summaryJSON(standouts string) string {
	return `{
		"role_summary": "Operates at the expected level.",
		"metrics_summary": "Five pull requests authored.",
		"performance_narrative": "A productive quarter with two rough spots.",
		"strengths": ["Delivery", "Testing"],
		"improvement_areas": ["Scoping", "Communication"],
		"standouts": ` + standouts + `
	}`
}

func TestLLMSummarizer_StandoutsCoverBothSentiments(t *testing.T) {
	mixed := summaryJSON(`[
		{"url": "https://github.com/acme/widgets/pull/1", "title": "PR 1", "sentiment": "positive", "reason": "Big win"},
		{"url": "https://github.com/acme/widgets/pull/4", "title": "PR 4", "sentiment": "concerning", "reason": "Regression"}
	]`)
	provider := &scriptedProvider{inputs: []string{mixed}}
	s := NewLLMSummarizer(provider, zerolog.Nop())

	analyses := fiveAnalyses()
	got, err := s.Summarize(context.Background(), SummaryRequest{
		Actor:    "octocat",
		Analyses: analyses,
		Counts:   metrics.Tally(analyses),
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(got.Standouts), 1)
	require.LessOrEqual(t, len(got.Standouts), 3)
	sentiments := map[models.Sentiment]bool{}
	for _, st := range got.Standouts {
		sentiments[st.Sentiment] = true
	}
	assert.True(t, sentiments[models.SentimentPositive])
	assert.True(t, sentiments[models.SentimentConcerning])

	prompt := provider.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "5 contributions: author 5 (pull_request 5)")
	assert.Contains(t, prompt, "https://github.com/acme/widgets/pull/5")
}

func TestLLMSummarizer_RejectsOneSidedStandouts(t *testing.T) {
	onlyPositive := summaryJSON(`[
		{"url": "https://github.com/acme/widgets/pull/1", "title": "PR 1", "sentiment": "positive", "reason": "Big win"},
		{"url": "https://github.com/acme/widgets/pull/2", "title": "PR 2", "sentiment": "positive", "reason": "Another"}
	]`)
	s := NewLLMSummarizer(&scriptedProvider{inputs: []string{onlyPositive}}, zerolog.Nop())

	_, err := s.Summarize(context.Background(), SummaryRequest{Actor: "octocat", Analyses: fiveAnalyses()})
	require.Error(t, err)
	assert.True(t, perrors.IsValidation(err))
	assert.Contains(t, err.Error(), "no concerning standout")
}

func TestLLMSummarizer_SchemaBounds(t *testing.T) {
	tooMany := summaryJSON(`[
		{"url": "https://github.com/acme/widgets/pull/1", "title": "1", "sentiment": "positive", "reason": "r"},
		{"url": "https://github.com/acme/widgets/pull/2", "title": "2", "sentiment": "positive", "reason": "r"},
		{"url": "https://github.com/acme/widgets/pull/3", "title": "3", "sentiment": "positive", "reason": "r"},
		{"url": "https://github.com/acme/widgets/pull/4", "title": "4", "sentiment": "concerning", "reason": "r"}
	]`)
	s := NewLLMSummarizer(&scriptedProvider{inputs: []string{tooMany}}, zerolog.Nop())
	_, err := s.Summarize(context.Background(), SummaryRequest{Actor: "octocat", Analyses: fiveAnalyses()})
	require.Error(t, err)
	assert.True(t, perrors.IsValidation(err))
}

func TestCheckSummary(t *testing.T) {
	analyses := fiveAnalyses()
	valid := models.ExecutiveSummary{
		RoleSummary:          "r",
		MetricsSummary:       "m",
		PerformanceNarrative: "p",
		Strengths:            []string{"a", "b"},
		ImprovementAreas:     []string{"c", "d"},
		Standouts: []models.Standout{
			{URL: "https://github.com/acme/widgets/pull/2", Title: "PR 2", Sentiment: models.SentimentPositive, Reason: "r"},
			{URL: "https://github.com/acme/widgets/pull/5", Title: "PR 5", Sentiment: models.SentimentConcerning, Reason: "r"},
		},
	}
	require.NoError(t, CheckSummary(valid, analyses))

	tests := []struct {
		name   string
		mutate func(*models.ExecutiveSummary)
		want   string
	}{
		{"three strengths", func(s *models.ExecutiveSummary) { s.Strengths = append(s.Strengths, "e") }, "2 strengths"},
		{"blank improvement", func(s *models.ExecutiveSummary) { s.ImprovementAreas[1] = " " }, "2 improvement areas"},
		{"no standouts", func(s *models.ExecutiveSummary) { s.Standouts = nil }, "1 to 3 standouts"},
		{"unknown url", func(s *models.ExecutiveSummary) { s.Standouts[0].URL = "https://github.com/acme/widgets/pull/99" }, "was not analyzed"},
		{"bad sentiment", func(s *models.ExecutiveSummary) { s.Standouts[0].Sentiment = "meh" }, "unknown sentiment"},
		{"empty narrative", func(s *models.ExecutiveSummary) { s.PerformanceNarrative = "" }, "performance_narrative is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Strengths = append([]string(nil), valid.Strengths...)
			s.ImprovementAreas = append([]string(nil), valid.ImprovementAreas...)
			s.Standouts = append([]models.Standout(nil), valid.Standouts...)
			tt.mutate(&s)
			err := CheckSummary(s, analyses)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckSummary_OneSidedCandidates(t *testing.T) {
	analyses := []models.Record{record(1, models.ImportanceHigh), record(2, models.ImportanceHigh)}
	sum := models.ExecutiveSummary{
		RoleSummary: "r", MetricsSummary: "m", PerformanceNarrative: "p",
		Strengths:        []string{"a", "b"},
		ImprovementAreas: []string{"c", "d"},
		Standouts: []models.Standout{
			{URL: "https://github.com/acme/widgets/pull/1", Title: "PR 1", Sentiment: models.SentimentPositive, Reason: "r"},
		},
	}
	assert.NoError(t, CheckSummary(sum, analyses), "a single sentiment is fine when only one kind of candidate exists")
}

func TestLoadRoleDescription(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/roles/senior.yaml", []byte(`
title: Backend Engineer
level: Senior
summary: Owns services end to end.
expectations:
  - Leads design reviews
focus_areas:
  - Reliability
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/roles/plain.md", []byte("  Staff engineer.\n"), 0o644))

	got, err := LoadRoleDescription(fs, "/roles/senior.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Senior Backend Engineer\nOwns services end to end.\nExpectations:\n- Leads design reviews\nFocus areas:\n- Reliability", got)

	got, err = LoadRoleDescription(fs, "/roles/plain.md")
	require.NoError(t, err)
	assert.Equal(t, "Staff engineer.", got)

	got, err = LoadRoleDescription(fs, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = LoadRoleDescription(fs, "/roles/missing.yaml")
	assert.Error(t, err)
}
