package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackAdapter posts world events to a single Slack channel.
type SlackAdapter struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackAdapter creates a Slack adapter. botToken is the Bot User
// OAuth Token (xoxb-...); channel is a channel ID or name.
func NewSlackAdapter(botToken, channel string, logger *zap.Logger) *SlackAdapter {
	return &SlackAdapter{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// Connect verifies the token with an auth test.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.logger.Info("slack adapter connected",
		zap.String("user", resp.User),
		zap.String("channel", a.channel))
	return nil
}

// Post sends one rendered event to the configured channel, impersonating
// the acting agent by display name.
func (a *SlackAdapter) Post(ctx context.Context, msg Message) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Text, false),
	}
	if msg.AgentID != "" {
		opts = append(opts, slack.MsgOptionUsername(msg.AgentID))
	}
	if _, _, err := a.client.PostMessageContext(ctx, a.channel, opts...); err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack client is stateless HTTP.
func (a *SlackAdapter) Close() error { return nil }
