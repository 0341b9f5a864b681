package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter posts world events to a single Discord channel.
type DiscordAdapter struct {
	token     string
	channelID string
	session   *discordgo.Session
	logger    *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter for the given bot token
// and target channel.
func NewDiscordAdapter(token, channelID string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{token: token, channelID: channelID, logger: logger}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// Connect opens the Discord gateway session. The relay only posts, so no
// message intents are requested.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsNone
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	a.session = session
	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.String("channel", a.channelID))
	return nil
}

// Post sends one rendered event to the configured channel, prefixed with
// the acting agent for attribution.
func (a *DiscordAdapter) Post(_ context.Context, msg Message) error {
	content := msg.Text
	if msg.AgentID != "" {
		content = fmt.Sprintf("**[%s]** %s", msg.AgentID, msg.Text)
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}
