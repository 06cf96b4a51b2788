// Package channels provides the chat-platform abstraction layer. Channels
// connect external platforms (Telegram, Discord) to the daemon, which routes
// inbound messages to agent workers and worker replies back out.
package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Inbound is a user message received by a channel.
type Inbound struct {
	Channel string
	AgentID string
	ChatID  string
	UserID  string
	Content string
}

// InboundHandler receives every accepted inbound message.
type InboundHandler func(Inbound)

// Channel defines the interface that all channel implementations satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram", "discord").
	Name() string

	// AgentID returns the agent this channel instance is bound to.
	AgentID() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers text to a chat, chunked to the platform's limit.
	Send(ctx context.Context, chatID, text string) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool
}

// sensitiveCommands may only be issued by configured owners.
var sensitiveCommands = map[string]bool{
	"/restart": true,
	"/reset":   true,
	"/model":   true,
	"/agent":   true,
}

// IsSensitiveCommand reports whether text starts with an owner-only command.
func IsSensitiveCommand(text string) bool {
	cmd := strings.SplitN(strings.TrimSpace(text), " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return sensitiveCommands[strings.ToLower(cmd)]
}

// BaseChannel provides shared functionality for channel implementations.
type BaseChannel struct {
	name    string
	agentID string

	allowList []string
	owners    []string
	handler   InboundHandler
	running   atomic.Bool

	// sendPacer spaces multi-chunk sends so platforms don't rate limit us.
	sendPacer *rate.Limiter
	// inboundLimiter caps per-user message volume; every accepted message
	// costs an LLM call.
	inboundLimiter *InboundRateLimiter
}

// NewBaseChannel creates the shared channel core.
func NewBaseChannel(name, agentID string, allowList, owners []string, handler InboundHandler) *BaseChannel {
	return &BaseChannel{
		name:           name,
		agentID:        agentID,
		allowList:      allowList,
		owners:         owners,
		handler:        handler,
		sendPacer:      rate.NewLimiter(rate.Every(300*time.Millisecond), 1),
		inboundLimiter: NewInboundRateLimiter(),
	}
}

func (c *BaseChannel) Name() string    { return c.name }
func (c *BaseChannel) AgentID() string { return c.agentID }

func (c *BaseChannel) IsRunning() bool         { return c.running.Load() }
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// IsAllowed checks a sender against the allowlist. Entries may be numeric
// IDs or @usernames; senderID may be the compound "id|username" form.
// An empty allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || senderID == trimmed ||
			idPart == allowed || idPart == trimmed ||
			(userPart != "" && (userPart == allowed || userPart == trimmed)) {
			return true
		}
	}
	return false
}

// IsOwner checks a sender against the owner list. With no owners configured,
// every allowlisted sender counts as an owner.
func (c *BaseChannel) IsOwner(senderID string) bool {
	if len(c.owners) == 0 {
		return c.IsAllowed(senderID)
	}

	idPart := senderID
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
	}
	for _, owner := range c.owners {
		trimmed := strings.TrimPrefix(owner, "@")
		if senderID == owner || senderID == trimmed || idPart == owner || idPart == trimmed {
			return true
		}
	}
	return false
}

// AuthorizeCommand reports whether the sender may issue the given text.
// Only sensitive commands need owner status.
func (c *BaseChannel) AuthorizeCommand(text, senderID string) bool {
	if !IsSensitiveCommand(text) {
		return true
	}
	return c.IsOwner(senderID)
}

// HandleInbound runs the allowlist and rate-limit checks, then forwards the
// message to the daemon. Returns false when the message was dropped.
func (c *BaseChannel) HandleInbound(chatID, senderID, content string) bool {
	if !c.IsAllowed(senderID) {
		return false
	}
	if !c.inboundLimiter.Allow(senderID) {
		return false
	}

	// Strip the "|username" suffix; downstream wants the bare platform ID.
	userID := senderID
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		userID = senderID[:idx]
	}

	if c.handler != nil {
		c.handler(Inbound{
			Channel: c.name,
			AgentID: c.agentID,
			ChatID:  chatID,
			UserID:  userID,
			Content: content,
		})
	}
	return true
}

// PaceSend blocks until the next chunk may be sent.
func (c *BaseChannel) PaceSend(ctx context.Context) error {
	return c.sendPacer.Wait(ctx)
}

// SplitMessage chunks text to at most limit bytes per piece, preferring to
// break at a newline and never splitting a UTF-8 rune.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > limit {
		cutAt := limit
		if idx := strings.LastIndexByte(text[:limit], '\n'); idx > limit/2 {
			cutAt = idx + 1
		} else {
			// Back off to a rune boundary.
			for cutAt > 0 && !isRuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				cutAt = limit
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
