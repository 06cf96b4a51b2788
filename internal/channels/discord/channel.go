// Package discord connects one agent to Discord via the gateway.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

// maxMessageLen is Discord's hard per-message character limit.
const maxMessageLen = 2000

// seenReaction marks accepted messages so the user knows the agent is on it.
const seenReaction = "👀"

// Channel is one agent's Discord binding.
type Channel struct {
	*channels.BaseChannel
	session *discordgo.Session
	cred    config.DiscordCredential

	botUserID    string // populated on start
	mentionsOnly bool   // in guilds, only respond when @mentioned

	removeHandler     func()
	removeInteraction func()
}

// New creates a Discord channel for the given agent binding.
func New(agentID string, cred config.DiscordCredential, handler channels.InboundHandler) (*Channel, error) {
	token := config.ResolveSecret(cred.BotToken, cred.BotTokenEnv)
	if token == "" {
		return nil, fmt.Errorf("discord: no bot token for agent %q", agentID)
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	mentionsOnly := true
	if cred.RespondToMentionsOnly != nil {
		mentionsOnly = *cred.RespondToMentionsOnly
	}

	return &Channel{
		BaseChannel:  channels.NewBaseChannel("discord", agentID, cred.AllowedUserIDs, cred.OwnerIDs, handler),
		session:      session,
		cred:         cred,
		mentionsOnly: mentionsOnly,
	}, nil
}

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot", "agent", c.AgentID())

	c.removeHandler = c.session.AddHandler(c.handleMessage)
	c.removeInteraction = c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	if _, err := c.session.ApplicationCommandBulkOverwrite(c.botUserID, "", slashCommands()); err != nil {
		slog.Warn("discord slash command sync failed", "agent", c.AgentID(), "error", err)
	}

	c.SetRunning(true)
	slog.Info("discord bot connected", "agent", c.AgentID(), "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot", "agent", c.AgentID())
	c.SetRunning(false)
	if c.removeHandler != nil {
		c.removeHandler()
	}
	if c.removeInteraction != nil {
		c.removeInteraction()
	}
	return c.session.Close()
}

// Send delivers text to a channel, splitting to Discord's 2000-char limit.
func (c *Channel) Send(ctx context.Context, chatID, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	for _, chunk := range channels.SplitMessage(text, maxMessageLen) {
		if err := c.PaceSend(ctx); err != nil {
			return err
		}
		if _, err := c.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""

	if !isDM {
		if !c.guildAllowed(m.GuildID) || !c.channelAllowed(m.ChannelID) {
			slog.Debug("discord message rejected by guild/channel allowlist",
				"guild", m.GuildID, "channel", m.ChannelID)
			return
		}
		if c.mentionsOnly && !c.mentionsBot(m) {
			return
		}
	}

	content := strings.TrimSpace(c.stripBotMentions(m.Content))
	if content == "" {
		return
	}

	if !c.AuthorizeCommand(content, m.Author.ID) {
		slog.Warn("discord command denied", "agent", c.AgentID(), "sender", m.Author.ID, "command", content)
		_, _ = c.session.ChannelMessageSend(m.ChannelID, "Sorry, only the owner can use this command.")
		return
	}

	if !c.HandleInbound(m.ChannelID, m.Author.ID, content) {
		slog.Debug("discord message dropped", "agent", c.AgentID(), "sender", m.Author.ID)
		return
	}

	// Best effort; the reply is the real acknowledgment.
	if err := c.session.MessageReactionAdd(m.ChannelID, m.ID, seenReaction); err != nil {
		slog.Debug("discord reaction failed", "error", err)
	}
}

// slashCommands mirrors the in-message system commands so Discord offers
// completion for them.
func slashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "help", Description: "Show available commands"},
		{Name: "reset", Description: "Reset conversation history"},
		{Name: "context", Description: "Show context window stats"},
		{Name: "model", Description: "Show or switch the LLM model",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "Model name, or \"list\"",
			}}},
		{Name: "usage", Description: "Show token usage and cost"},
		{Name: "status", Description: "Show agent status"},
		{Name: "restart", Description: "Restart the agent process"},
	}
}

// handleInteraction turns a slash command invocation into the equivalent
// in-message command. The interaction is acknowledged immediately; the real
// answer arrives as a regular channel message.
func (c *Channel) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil || user.ID == c.botUserID {
		return
	}

	data := i.ApplicationCommandData()
	content := "/" + data.Name
	for _, opt := range data.Options {
		if s, ok := opt.Value.(string); ok && s != "" {
			content += " " + s
		}
	}

	allowed := c.AuthorizeCommand(content, user.ID)
	ack := "On it " + seenReaction
	if !allowed {
		ack = "Sorry, only the owner can use this command."
	}
	err := c.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: ack},
	})
	if err != nil {
		slog.Debug("discord interaction ack failed", "error", err)
	}
	if !allowed {
		return
	}

	c.HandleInbound(i.ChannelID, user.ID, content)
}

func (c *Channel) mentionsBot(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	return false
}

// stripBotMentions removes <@id> and <@!id> references to the bot so the
// agent sees clean text.
func (c *Channel) stripBotMentions(content string) string {
	content = strings.ReplaceAll(content, "<@"+c.botUserID+">", "")
	content = strings.ReplaceAll(content, "<@!"+c.botUserID+">", "")
	return content
}

func (c *Channel) guildAllowed(guildID string) bool {
	if len(c.cred.AllowedGuildIDs) == 0 {
		return true
	}
	for _, id := range c.cred.AllowedGuildIDs {
		if id == guildID {
			return true
		}
	}
	return false
}

func (c *Channel) channelAllowed(channelID string) bool {
	if len(c.cred.AllowedChannelIDs) == 0 {
		return true
	}
	for _, id := range c.cred.AllowedChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}
