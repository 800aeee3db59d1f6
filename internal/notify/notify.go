// Package notify delivers finished reviews to Slack.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/perfreview/internal/orchestrator"
)

// Poster is the subset of the Slack API used for delivery.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts run results to a single channel.
type Notifier struct {
	api     Poster
	channel string
	logger  zerolog.Logger
}

// New creates a Notifier backed by the Slack Web API.
func New(botToken, channel string, logger zerolog.Logger) *Notifier {
	return NewWithAPI(slack.New(botToken), channel, logger)
}

// NewWithAPI creates a Notifier with an explicit API client.
func NewWithAPI(api Poster, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Deliver posts the result summary and returns the message timestamp.
func (n *Notifier) Deliver(ctx context.Context, res *orchestrator.Result) (string, error) {
	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(SummaryText(res), false),
		slack.MsgOptionBlocks(BuildSummaryBlocks(res)...),
	)
	if err != nil {
		return "", fmt.Errorf("posting summary to %s: %w", n.channel, err)
	}
	n.logger.Info().
		Str("channel", n.channel).
		Str("ts", ts).
		Str("run_id", res.RunID).
		Msg("summary delivered")
	return ts, nil
}
