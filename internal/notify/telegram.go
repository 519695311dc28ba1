package notify

import (
	"fmt"
	"sync"

	"kerigma/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the subset of the bot API used for notifications.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards notifications to an administrators chat from a
// background goroutine. When the buffer is full notifications are dropped.
type TelegramNotifier struct {
	bot    TelegramSender
	chatID int64
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan models.Notification
	wg     sync.WaitGroup
}

func NewTelegramNotifier(bot TelegramSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "telegram-notifier").Logger()
	}
	t := &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: l,
		queue:  make(chan models.Notification, 64),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// NewTelegramBot builds a bot client from a token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (t *TelegramNotifier) Notify(n models.Notification) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- n:
	default:
		t.logger.Warn().Str("title", n.Title).Msg("telegram queue full, notification dropped")
	}
}

func (t *TelegramNotifier) loop() {
	defer t.wg.Done()
	for n := range t.queue {
		msg := tgbotapi.NewMessage(t.chatID, formatMessage(n))
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error().Err(err).Str("title", n.Title).Msg("send telegram notification")
		}
	}
}

// Close drains pending notifications and stops the sender goroutine.
func (t *TelegramNotifier) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func formatMessage(n models.Notification) string {
	prefix := "ℹ️"
	if n.Severity == models.SeverityDestructive {
		prefix = "⚠️"
	}
	return fmt.Sprintf("%s %s\n%s", prefix, n.Title, n.Description)
}
