// Package telegram connects one agent to Telegram via the Bot API using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

// maxMessageLen is Telegram's hard per-message character limit.
const maxMessageLen = 4096

// Channel is one agent's Telegram binding.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// New creates a Telegram channel for the given agent binding.
func New(agentID string, cred config.ChannelCredential, handler channels.InboundHandler) (*Channel, error) {
	token := config.ResolveSecret(cred.BotToken, cred.BotTokenEnv)
	if token == "" {
		return nil, fmt.Errorf("telegram: no bot token for agent %q", agentID)
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", agentID, cred.AllowedUserIDs, cred.OwnerIDs, handler),
		bot:         bot,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot", "agent", c.AgentID())

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "agent", c.AgentID(), "username", c.bot.Username())

	// Register bot menu commands with retry.
	go func() {
		for attempt := 1; attempt <= 3; attempt++ {
			if err := c.syncMenuCommands(pollCtx); err != nil {
				slog.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
				if attempt < 3 {
					select {
					case <-pollCtx.Done():
						return
					case <-time.After(time.Duration(attempt*5) * time.Second):
					}
				}
			} else {
				slog.Info("telegram menu commands synced", "agent", c.AgentID())
				return
			}
		}
	}()

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed", "agent", c.AgentID())
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the bot by cancelling the long polling context and waiting
// for the polling goroutine to exit, so Telegram releases the getUpdates lock
// before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot", "agent", c.AgentID())
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers text to a chat, splitting to Telegram's 4096-char limit.
func (c *Channel) Send(ctx context.Context, chatID, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	for _, chunk := range channels.SplitMessage(text, maxMessageLen) {
		if err := c.PaceSend(ctx); err != nil {
			return err
		}
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}

	senderID := fmt.Sprintf("%d|%s", msg.From.ID, msg.From.Username)
	chatID := fmt.Sprintf("%d", msg.Chat.ID)
	text := strings.TrimSpace(msg.Text)

	if !c.AuthorizeCommand(text, senderID) {
		slog.Warn("telegram command denied", "agent", c.AgentID(), "sender", senderID, "command", text)
		_, _ = c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID),
			"Sorry, only the owner can use this command."))
		return
	}

	if !c.HandleInbound(chatID, senderID, text) {
		slog.Debug("telegram message dropped", "agent", c.AgentID(), "sender", senderID)
	}
}

// syncMenuCommands registers the bot command menu via setMyCommands.
func (c *Channel) syncMenuCommands(ctx context.Context) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: menuCommands(),
	})
}

func menuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Start chatting with the agent"},
		{Command: "help", Description: "Show available commands"},
		{Command: "reset", Description: "Reset conversation history"},
		{Command: "context", Description: "Show context window stats"},
		{Command: "model", Description: "Show or switch the LLM model"},
		{Command: "usage", Description: "Show token usage and cost"},
		{Command: "status", Description: "Show agent status"},
		{Command: "restart", Description: "Restart the agent process"},
	}
}

// parseChatID converts a string chat ID to int64.
func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}
