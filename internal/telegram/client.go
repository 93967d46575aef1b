// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/models"
	"github.com/rewired-gh/pppwatch/internal/report"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	send           func(tgbotapi.Chattable) (tgbotapi.Message, error)
	chatID         int64
	label          string
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client that reports on the pair named label.
func NewClient(botToken, chatID, label string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		send:           bot.Send,
		chatID:         chatIDInt,
		label:          label,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// latest supplies the frame reported by /ppp. It returns immediately; the goroutine
// stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, latest func() *models.Frame) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, latest)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, latest func() *models.Frame) {
	text, markdown := c.commandReply(msg.Command(), latest)
	if text == "" {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	if markdown {
		reply.ParseMode = "MarkdownV2"
	}
	if _, err := c.send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// commandReply returns the reply text for a command and whether it is MarkdownV2.
// Unknown commands get no reply.
func (c *Client) commandReply(command string, latest func() *models.Frame) (string, bool) {
	switch command {
	case "ping":
		return "Pong", false
	case "ppp":
		s, err := report.Summarize(latest())
		if err != nil {
			return "No estimation available yet", false
		}
		return formatSummary(c.label, s), true
	}
	return "", false
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a refresh error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *%s refresh error*\n`%s`",
		escapeMarkdownV2(c.label), escapeCode(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *%s refresh recovered* after %d consecutive failure\\(s\\)",
		escapeMarkdownV2(c.label), failureCount)
	return c.sendMarkdownV2(text)
}

// SendSummary sends the latest-row summary of a newly computed frame.
func (c *Client) SendSummary(s report.Summary) error {
	return c.sendMarkdownV2(formatSummary(c.label, s))
}

// formatSummary formats a summary into a Telegram MarkdownV2 message.
func formatSummary(label string, s report.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s PPP estimate* \\(%d\\)\n\n", escapeMarkdownV2(label), s.Index)
	fmt.Fprintf(&b, "Rate: `%s`\n", formatNumber(s.Rate, "%.4f"))
	fmt.Fprintf(&b, "Estimate: `%s`\n", formatNumber(s.Estimate, "%.4f"))
	fmt.Fprintf(&b, "Band: `%s` to `%s`\n", formatNumber(s.Low, "%.4f"), formatNumber(s.High, "%.4f"))
	fmt.Fprintf(&b, "Relative error: `%s`\n\n", formatPercent(s.RelativeError))

	switch s.Direction() {
	case "inside":
		b.WriteString("✅ Rate is inside the band")
	case "above":
		b.WriteString("📈 *Rate is above the band*")
	case "below":
		b.WriteString("📉 *Rate is below the band*")
	default:
		b.WriteString(escapeMarkdownV2("ℹ️ Band undefined (needs two observations)"))
	}
	return b.String()
}

func formatNumber(v models.Number, format string) string {
	if models.IsMissing(float64(v)) {
		return "n/a"
	}
	return fmt.Sprintf(format, float64(v))
}

func formatPercent(v models.Number) string {
	if models.IsMissing(float64(v)) {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", float64(v)*100)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text for use inside a MarkdownV2 code span.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}
