package channels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/logger"
)

const (
	sendTimeout = 10 * time.Second

	// Discord rejects embed field values longer than this.
	embedFieldLimit = 1024
	embedDescLimit  = 4096
)

var ErrNotRunning = errors.New("discord bot not running")

// DiscordChannel watches guild messages for the moderator and carries out
// its enforcements. It also serves channel history to the scanner.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig

	guildMu  sync.Mutex
	guildIDs map[string]string
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus),
		session:     session,
		config:      cfg,
		guildIDs:    make(map[string]string),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
		"guild_id": c.config.GuildID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

// Enforce deletes, posts a notice or posts an embed, bounded by sendTimeout.
func (c *DiscordChannel) Enforce(ctx context.Context, e bus.Enforcement) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	if e.ChannelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	return c.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		switch e.Kind {
		case bus.EnforceDelete:
			err = c.session.ChannelMessageDelete(e.ChannelID, e.MessageID, discordgo.WithContext(ctx))
		case bus.EnforceNotice:
			_, err = c.session.ChannelMessageSend(e.ChannelID, e.Content, discordgo.WithContext(ctx))
		case bus.EnforceEmbed:
			if e.Embed == nil {
				return fmt.Errorf("embed enforcement without embed")
			}
			_, err = c.session.ChannelMessageSendEmbed(e.ChannelID, toDiscordEmbed(e.Embed), discordgo.WithContext(ctx))
		default:
			return fmt.Errorf("unknown enforcement kind %q", e.Kind)
		}
		if err != nil {
			return fmt.Errorf("discord %s in %s: %w", e.Kind, e.ChannelID, err)
		}
		return nil
	})
}

func (c *DiscordChannel) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(sendCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("discord request timeout: %w", sendCtx.Err())
	}
}

// Latest returns up to limit of the newest messages in channelID.
func (c *DiscordChannel) Latest(ctx context.Context, channelID string, limit int) ([]bus.ObservedMessage, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch latest messages in %s: %w", channelID, err)
	}
	return c.observeHistory(channelID, msgs), nil
}

// After returns up to limit messages posted after afterID.
func (c *DiscordChannel) After(ctx context.Context, channelID, afterID string, limit int) ([]bus.ObservedMessage, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", afterID, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch messages after %s in %s: %w", afterID, channelID, err)
	}
	return c.observeHistory(channelID, msgs), nil
}

func (c *DiscordChannel) observeHistory(channelID string, msgs []*discordgo.Message) []bus.ObservedMessage {
	guildID := c.guildFor(channelID)
	out := make([]bus.ObservedMessage, 0, len(msgs))
	for _, m := range msgs {
		if skipAuthor(m) {
			continue
		}
		if m.GuildID == "" {
			m.GuildID = guildID
		}
		obs := observe(m)
		obs.Channel = c.Name()
		out = append(out, obs)
	}
	return out
}

// guildFor resolves the guild of a channel from state, REST or config, in
// that order.
func (c *DiscordChannel) guildFor(channelID string) string {
	c.guildMu.Lock()
	defer c.guildMu.Unlock()
	if id, ok := c.guildIDs[channelID]; ok {
		return id
	}
	id := c.config.GuildID
	if ch, err := c.session.State.Channel(channelID); err == nil && ch.GuildID != "" {
		id = ch.GuildID
	} else if ch, err := c.session.Channel(channelID); err == nil && ch.GuildID != "" {
		id = ch.GuildID
	}
	c.guildIDs[channelID] = id
	return id
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if skipAuthor(m.Message) || m.GuildID == "" {
		return
	}
	if c.config.GuildID != "" && m.GuildID != c.config.GuildID {
		return
	}
	if c.isStaff(s, m.Message) {
		logger.DebugCF("discord", "Skipping staff message", map[string]any{
			"user_id":    m.Author.ID,
			"channel_id": m.ChannelID,
		})
		return
	}

	c.HandleMessage(observe(m.Message))
}

// isStaff applies the configured staff role, or the manage-messages
// permission when no role is configured.
func (c *DiscordChannel) isStaff(s *discordgo.Session, m *discordgo.Message) bool {
	if c.config.StaffRoleID != "" {
		return hasRole(m.Member, c.config.StaffRoleID)
	}
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		logger.DebugCF("discord", "Permission lookup failed", map[string]any{
			"user_id": m.Author.ID,
			"error":   err.Error(),
		})
		return false
	}
	return perms&discordgo.PermissionManageMessages != 0
}

func hasRole(member *discordgo.Member, roleID string) bool {
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, roleID)
}

func skipAuthor(m *discordgo.Message) bool {
	return m.Author == nil || m.Author.Bot || m.WebhookID != ""
}

func observe(m *discordgo.Message) bus.ObservedMessage {
	name := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		name += "#" + m.Author.Discriminator
	}
	return bus.ObservedMessage{
		MessageID:   m.ID,
		CommunityID: m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		AuthorName:  name,
		Content:     m.ContentWithMentionsReplaced(),
		Timestamp:   m.Timestamp,
	}
}

func toDiscordEmbed(e *bus.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: truncate(e.Description, embedDescLimit),
		Color:       e.Color,
		Fields:      make([]*discordgo.MessageEmbedField, 0, len(e.Fields)),
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  truncate(f.Value, embedFieldLimit),
			Inline: f.Inline,
		})
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
