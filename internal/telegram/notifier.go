package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"garagechat/backend/internal/localization"
	"garagechat/backend/internal/models"
)

// Callback data carried by the alert buttons.
const (
	CallbackOpenChat = "open_chat"
	CallbackDismiss  = "dismiss"
)

// Sender is the part of the Bot API used here. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier mirrors the in-app new-message alert into a Telegram chat. Only
// the newest alert stays in the chat: showing a new one deletes the previous
// message, and dismissing deletes it outright.
type Notifier struct {
	bot       Sender
	chatID    int64
	localizer *localization.Localizer
	lang      string
	logger    zerolog.Logger

	pending chan models.NotificationState

	mu      sync.Mutex
	current int // message id of the alert on screen, 0 if none
}

func NewNotifier(bot Sender, chatID int64, localizer *localization.Localizer, lang string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		bot:       bot,
		chatID:    chatID,
		localizer: localizer,
		lang:      lang,
		logger:    logger.With().Str("component", "telegram_notifier").Logger(),
		pending:   make(chan models.NotificationState, 1),
	}
}

// NotificationChanged implements notify.Listener. It never blocks; if the
// previous state has not been sent yet it is replaced.
func (n *Notifier) NotificationChanged(state models.NotificationState) {
	for {
		select {
		case n.pending <- state:
			return
		default:
		}
		select {
		case <-n.pending:
		default:
		}
	}
}

// Run delivers state changes to Telegram until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-n.pending:
			n.apply(state)
		}
	}
}

// CurrentAlert returns the Telegram message id of the visible alert.
func (n *Notifier) CurrentAlert() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Notifier) apply(state models.NotificationState) {
	n.mu.Lock()
	prev := n.current
	n.current = 0
	n.mu.Unlock()

	if prev != 0 {
		n.deleteMessage(prev)
	}
	if !state.Visible {
		return
	}

	alert := n.localizer.Alert(n.lang, state.SenderName, state.MessageText)
	msg := tgbotapi.NewMessage(n.chatID, alert.Text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(alert.OpenChat, CallbackOpenChat),
			tgbotapi.NewInlineKeyboardButtonData(alert.Dismiss, CallbackDismiss),
		),
	)

	sent, err := n.bot.Send(msg)
	if err != nil {
		n.logger.Error().Err(err).Str("room", state.RoomKey).Msg("failed to send alert")
		return
	}

	n.mu.Lock()
	n.current = sent.MessageID
	n.mu.Unlock()
}

func (n *Notifier) deleteMessage(messageID int) {
	deleteMsg := tgbotapi.NewDeleteMessage(n.chatID, messageID)
	if _, err := n.bot.Request(deleteMsg); err != nil {
		n.logger.Warn().Err(err).Int("message_id", messageID).Msg("failed to delete alert")
	}
}
