package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"billing-reminder-backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender is the part of *tgbotapi.BotAPI used here.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a summary of each finished run to an operator chat.
type TelegramNotifier struct {
	bot    BotSender
	chatID int64
}

func NewTelegramNotifier(bot BotSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// NewTelegramNotifierFromToken connects to the bot API with token.
func NewTelegramNotifierFromToken(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramNotifier(bot, chatID), nil
}

func (n *TelegramNotifier) RunFinished(_ context.Context, run models.DispatchRun) error {
	msg := tgbotapi.NewMessage(n.chatID, Summary(run))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending run summary to chat %v: %w", n.chatID, err)
	}
	return nil
}

// Summary renders run as the HTML text sent to the chat.
func Summary(run models.DispatchRun) string {
	icon := "✅"
	switch {
	case run.Status == models.RunFailed:
		icon = "❌"
	case run.FailedCount > 0 || run.SkippedCount > 0:
		icon = "⚠️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Envio automático %s</b>\n", icon, html.EscapeString(run.RunDate.Format("02/01/2006")))
	fmt.Fprintf(&b, "Status: %s\n", html.EscapeString(run.Status))
	fmt.Fprintf(&b, "Processadas: %d de %d\n", run.ProcessedCount, run.Total)
	fmt.Fprintf(&b, "Registradas: %d, falhas: %d", run.RecordedCount, run.FailedCount)
	if run.SkippedCount > 0 {
		fmt.Fprintf(&b, ", descartadas: %d", run.SkippedCount)
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "\nErro: <code>%s</code>", html.EscapeString(run.Error))
	}
	return b.String()
}
