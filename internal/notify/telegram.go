package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

// maxListed caps how many abandoned wallets are named in one message.
const maxListed = 10

// Telegram posts batch summaries to a single chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram connects to the Bot API. Extra options are passed to bot.New.
func NewTelegram(token string, chatID int64, opts ...bot.Option) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// NotifySummary sends the summary of a finished batch.
func (t *Telegram) NotifySummary(ctx context.Context, summary *core.BatchSummary) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   FormatSummary(summary),
	})
	if err != nil {
		return fmt.Errorf("failed to send summary to chat %d: %w", t.chatID, err)
	}
	logger.Debug("Sent batch summary to chat %d", t.chatID)
	return nil
}

// FormatSummary renders a summary as a plain-text chat message.
func FormatSummary(s *core.BatchSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s of %s finished in %v\n", s.Operation, s.Asset, s.Elapsed.Round(time.Second))
	fmt.Fprintf(&sb, "✅ landed: %d\n", s.Landed)
	fmt.Fprintf(&sb, "⏭ skipped: %d\n", s.Skipped)
	fmt.Fprintf(&sb, "❌ abandoned: %d", s.Abandoned)
	if s.Operation.Kind == core.OpQueryBalance {
		fmt.Fprintf(&sb, "\ntotal: %d", s.Total)
	}

	listed := 0
	for _, wo := range s.Outcomes {
		if wo.Outcome.Kind != core.OutcomeAbandoned {
			continue
		}
		if listed == 0 {
			sb.WriteString("\n\nAbandoned:")
		}
		if listed == maxListed {
			fmt.Fprintf(&sb, "\n... and %d more", s.Abandoned-maxListed)
			break
		}
		name := wo.Address
		if name == "" {
			name = wo.Path
		}
		fmt.Fprintf(&sb, "\n%s: %s", name, wo.Outcome.Reason)
		listed++
	}
	return sb.String()
}
