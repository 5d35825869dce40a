// Package bot connects the pugs to Discord.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/bot/commands"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
)

// Bot wraps the Discord session. It delivers pug announcements and direct
// messages, and routes slash commands to the command handlers.
type Bot struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	cmds    []*discordgo.ApplicationCommand
}

// New creates a new Bot instance. The session is not opened until Start.
func New(cfg config.DiscordConfig, logger *slog.Logger, tp trace.TracerProvider) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session: session,
		cfg:     cfg,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/assault-pugbot/internal/bot"),
	}, nil
}

// Announce posts msg to a channel, split over several messages when it is
// too long for one.
func (b *Bot) Announce(ctx context.Context, channelID, msg string) error {
	_, span := b.tracer.Start(ctx, "Bot.Announce", trace.WithAttributes(attribute.String("channel", channelID)))
	defer span.End()

	for _, part := range commands.SplitMessage(msg, commands.MessageLimit) {
		if _, err := b.session.ChannelMessageSend(channelID, part); err != nil {
			span.RecordError(err)
			return fmt.Errorf("sending to channel %s: %w", channelID, err)
		}
	}
	return nil
}

// DirectMessage sends msg to a user privately.
func (b *Bot) DirectMessage(ctx context.Context, userID, msg string) error {
	_, span := b.tracer.Start(ctx, "Bot.DirectMessage", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("opening direct channel to %s: %w", userID, err)
	}
	for _, part := range commands.SplitMessage(msg, commands.MessageLimit) {
		if _, err := b.session.ChannelMessageSend(ch.ID, part); err != nil {
			span.RecordError(err)
			return fmt.Errorf("sending direct message to %s: %w", userID, err)
		}
	}
	return nil
}

// Start opens the Discord connection and registers slash commands.
func (b *Bot) Start(ctx context.Context, handlers *commands.Handlers) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.InfoContext(ctx, "bot is ready", slog.String("user", s.State.User.Username))
	})

	b.session.AddHandler(handlers.InteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, commands.SlashCommands())
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.cmds = registered

	b.logger.InfoContext(ctx, "slash commands registered", slog.Int("count", len(registered)))
	return nil
}

// Stop closes the Discord connection. Registered commands are left in place
// so a replica taking over does not race their deletion.
func (b *Bot) Stop() error {
	b.logger.Info("closing discord session", slog.Int("commands", len(b.cmds)))
	return b.session.Close()
}
