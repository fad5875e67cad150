// Package discord is the chat front-end: it turns bot mentions into
// inventory cycles and posts the resulting summary.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/service"
	"rsm-inventory-bot/pkg/uid"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LoadingMessage      = "Loading contracts..."
	DefaultLoadingTTL   = 10 * time.Second
	authFailureMessage  = "Could not authenticate with ESI, please ask an admin to check the bot's token."
	fetchFailureMessage = "Could not load corporation contracts right now, please try again later."
)

// Querier runs one inventory cycle.
type Querier interface {
	Query(ctx context.Context, text string) (*model.Summary, error)
}

// Messenger is the subset of the chat session used to reply.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

var _ Messenger = (*discordgo.Session)(nil)

// Config holds front-end settings.
type Config struct {
	Token      string
	GuildID    string
	LoadingTTL time.Duration
	// CycleTimeout bounds one cycle; 0 means no bound.
	CycleTimeout time.Duration
}

// Bot relays mentions to the inventory service.
type Bot struct {
	cfg     Config
	querier Querier
	session *discordgo.Session
	log     zerolog.Logger

	// ctx is cancelled on Close so in-flight cycles and pending deletes stop.
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders track against shutdown so wg.Add never races wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a bot. The session is not opened until Open.
func New(cfg Config, querier Querier) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord bot token is required")
	}
	if cfg.LoadingTTL <= 0 {
		cfg.LoadingTTL = DefaultLoadingTTL
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		cfg:     cfg,
		querier: querier,
		session: session,
		log:     log.With().Str("component", "discord").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects and waits for in-flight cycles. Mentions arriving
// afterwards are ignored.
func (b *Bot) Close() error {
	err := b.session.Close()
	b.shutdown()
	return err
}

func (b *Bot) shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

// track runs fn in a goroutine unless the bot is closed.
func (b *Bot) track(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if b.cfg.GuildID != "" && g.ID != b.cfg.GuildID {
			continue
		}
		name := g.Name
		if name == "" {
			name = g.ID
		}
		b.log.Info().Str("user", r.User.String()).Str("guild", name).Msg("connected")
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State == nil || s.State.User == nil {
		return
	}
	if !b.shouldHandle(s.State.User.ID, m.Message) {
		return
	}

	if !b.track(func() { b.handle(b.ctx, s, m.Message) }) {
		b.log.Debug().Str("channel_id", m.ChannelID).Msg("mention ignored during shutdown")
	}
}

// shouldHandle reports whether msg mentions selfID and comes from an allowed guild.
func (b *Bot) shouldHandle(selfID string, msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil || msg.Author.ID == selfID {
		return false
	}
	if b.cfg.GuildID != "" && msg.GuildID != b.cfg.GuildID {
		return false
	}
	return Mentions(msg, selfID)
}

// Mentions reports whether userID is among the message mentions.
func Mentions(msg *discordgo.Message, userID string) bool {
	for _, u := range msg.Mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

func (b *Bot) handle(ctx context.Context, out Messenger, msg *discordgo.Message) {
	ctx = service.WithCycleID(ctx, uid.New())
	if b.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CycleTimeout)
		defer cancel()
	}
	l := b.log.With().
		Str("cycle_id", service.CycleID(ctx)).
		Str("channel_id", msg.ChannelID).
		Str("author", msg.Author.Username).
		Logger()
	l.Info().Str("content", msg.Content).Msg("mention received")

	b.sendTransient(out, msg.ChannelID, LoadingMessage, l)

	summary, err := b.querier.Query(ctx, msg.Content)
	if err != nil {
		l.Error().Err(err).Msg("inventory query failed")
		if _, sendErr := out.ChannelMessageSend(msg.ChannelID, failureMessage(err)); sendErr != nil {
			l.Error().Err(sendErr).Msg("failed to send failure notice")
		}
		return
	}

	if _, err := out.ChannelMessageSendEmbed(msg.ChannelID, Embed(summary)); err != nil {
		l.Error().Err(err).Msg("failed to send summary")
	}
}

// sendTransient posts content and deletes it after LoadingTTL, or at shutdown.
func (b *Bot) sendTransient(out Messenger, channelID, content string, l zerolog.Logger) {
	sent, err := out.ChannelMessageSend(channelID, content)
	if err != nil {
		l.Warn().Err(err).Msg("failed to send loading notice")
		return
	}

	remove := func() {
		if err := out.ChannelMessageDelete(channelID, sent.ID); err != nil {
			l.Debug().Err(err).Msg("failed to delete loading notice")
		}
	}
	waitAndRemove := func() {
		timer := time.NewTimer(b.cfg.LoadingTTL)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-b.ctx.Done():
		}
		remove()
	}
	if !b.track(waitAndRemove) {
		remove()
	}
}

func failureMessage(err error) string {
	if esi.IsAuthError(err) {
		return authFailureMessage
	}
	return fetchFailureMessage
}
