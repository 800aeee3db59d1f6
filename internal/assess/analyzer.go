// Package assess holds the two language-model collaborators of a review
// run: per-contribution analysis and the executive summary. Both obtain
// structured output through a forced tool call and validate it against a
// fixed JSON schema before anything is cached or reported.
package assess

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/llm"
	"github.com/p-blackswan/perfreview/internal/locator"
	"github.com/p-blackswan/perfreview/internal/models"
)

const stageAnalysis = "analysis"

// AnalysisRequest is the input of one per-contribution judgment.
type AnalysisRequest struct {
	Actor           string
	Detail          models.Detail
	RoleDescription string
}

// Analyzer judges one contribution on behalf of one actor.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (models.Assessment, error)
}

// LLMAnalyzer is the language-model backed Analyzer.
type LLMAnalyzer struct {
	provider llm.Provider
	parser   *locator.Parser
	logger   zerolog.Logger
}

// NewLLMAnalyzer returns an analyzer that restricts referenced links to parser's host.
func NewLLMAnalyzer(provider llm.Provider, parser *locator.Parser, logger zerolog.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{
		provider: provider,
		parser:   parser,
		logger:   logger.With().Str("component", "assess.analyzer").Logger(),
	}
}

// Analyze makes a single collaborator call. Retrying is left to the caller.
func (a *LLMAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (models.Assessment, error) {
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analysisSystemPrompt,
		Messages:     []llm.Message{llm.UserMessage(renderAnalysisPrompt(req))},
		Tools:        []llm.ToolSchema{assessmentOutput.tool},
		ForceTool:    assessmentTool,
	})
	if err != nil {
		return models.Assessment{}, fmt.Errorf("analyze %s: %w", req.Detail.Ref.Key(), err)
	}

	var out models.Assessment
	if err := assessmentOutput.decode(stageAnalysis, resp.StructuredOutput(assessmentTool), &out); err != nil {
		return models.Assessment{}, fmt.Errorf("analyze %s: %w", req.Detail.Ref.Key(), err)
	}
	if out.Role.Priority() == 0 {
		return models.Assessment{}, perrors.NewValidationError(stageAnalysis, fmt.Sprintf("unknown role %q", out.Role))
	}

	kept := FilterURLs(a.parser, out.ReferencedURLs)
	if dropped := len(out.ReferencedURLs) - len(kept); dropped > 0 {
		a.logger.Debug().Str("key", req.Detail.Ref.Key().String()).Int("dropped", dropped).Msg("dropped off-platform links")
	}
	out.ReferencedURLs = kept
	return out, nil
}

// FilterURLs keeps the links on the parser's host, in order, without duplicates.
func FilterURLs(parser *locator.Parser, urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] || !parser.SameHost(u) {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
