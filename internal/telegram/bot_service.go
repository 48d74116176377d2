// Package telegram mirrors new-message alerts into a Telegram chat and turns
// the alert's buttons back into accept and dismiss actions.
package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Actions is what the alert buttons trigger. *chathub.ManagerService
// satisfies it.
type Actions interface {
	Accept()
	Dismiss()
}

// BotService handles callback queries from the alert chat.
type BotService struct {
	Bot     Sender
	ChatID  int64
	Actions Actions
	logger  zerolog.Logger
}

// NewBotAPI authorizes against Telegram with token.
func NewBotAPI(token string, logger zerolog.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	logger.Info().Str("account", bot.Self.UserName).Msg("authorized on telegram")
	return bot, nil
}

func NewBotService(bot Sender, chatID int64, actions Actions, logger zerolog.Logger) *BotService {
	return &BotService{
		Bot:     bot,
		ChatID:  chatID,
		Actions: actions,
		logger:  logger.With().Str("component", "telegram_bot").Logger(),
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery != nil {
				s.handleCallbackQuery(update.CallbackQuery)
			}
		}
	}
}

func (s *BotService) handleCallbackQuery(callbackQuery *tgbotapi.CallbackQuery) {
	// Respond to the callback query to remove the "loading" state
	callback := tgbotapi.NewCallback(callbackQuery.ID, "")
	if _, err := s.Bot.Request(callback); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send callback response")
	}

	if callbackQuery.Message == nil || callbackQuery.Message.Chat.ID != s.ChatID {
		s.logger.Warn().Msg("callback from unexpected chat")
		return
	}

	switch callbackQuery.Data {
	case CallbackOpenChat:
		s.Actions.Accept()
	case CallbackDismiss:
		s.Actions.Dismiss()
	default:
		s.logger.Debug().Str("data", callbackQuery.Data).Msg("unknown callback")
	}
}
