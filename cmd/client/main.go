package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"garagechat/backend/internal/chathub"
	"garagechat/backend/internal/config"
	"garagechat/backend/internal/gateway"
	"garagechat/backend/internal/localization"
	"garagechat/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := cfg.Logger()

	if len(os.Args) < 2 {
		fmt.Println("Usage: client <rooms|unread|chat> [args]")
		os.Exit(1)
	}
	if cfg.Token == "" || cfg.Participant == "" {
		fmt.Println("CHAT_TOKEN and CHAT_PARTICIPANT must be set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewHTTPClient(cfg.ServerURL, cfg.Token, config.GatewayHTTPTimeout, logger)

	switch command := os.Args[1]; command {
	case "rooms":
		rooms, err := gw.FetchRoomList(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to list rooms")
		}
		for _, r := range rooms {
			fmt.Printf("%-40s %-20s %3d unread  %s\n", r.RoomKey, r.OtherParticipantName, r.UnreadCount, r.LastMessageText)
		}
	case "unread":
		n, err := gw.FetchUnreadCount(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to count unread")
		}
		fmt.Println(n)
	case "chat":
		if len(os.Args) < 3 {
			fmt.Println("Usage: client chat <participant_id> [name]")
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 3 {
			name = os.Args[3]
		}
		if err := runChat(ctx, cfg, gw, os.Args[2], name, logger); err != nil {
			logger.Fatal().Err(err).Msg("chat failed")
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func runChat(ctx context.Context, cfg *config.Config, gw gateway.Gateway, other, name string, logger zerolog.Logger) error {
	hub := chathub.NewManagerService(cfg.Participant, gw, gateway.RetryPolicy{
		Attempts:  config.ReadRetryAttempts,
		BaseDelay: config.ReadRetryBaseDelay,
		MaxDelay:  config.ReadRetryMaxDelay,
	}, logger)
	hub.ResyncInterval = config.ResyncInterval

	listener, err := chathub.NewWSListener(cfg.ServerURL, cfg.Token, hub.InboundCh, logger)
	if err != nil {
		return err
	}

	if cfg.TelegramEnabled() {
		if err := startTelegram(ctx, cfg, hub, logger); err != nil {
			logger.Warn().Err(err).Msg("telegram alerts disabled")
		}
	}

	go hub.Run(ctx)
	go listener.Run(ctx)
	hub.Resync()

	session, err := hub.Open(other, name)
	if err != nil {
		return err
	}
	go render(ctx, session)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-hub.OpenChatCh:
				fmt.Printf("* %s wants to chat; restart with: client chat %s\n", id, id)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			session.Close()
			<-hub.Done()
			return nil
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				session.Close()
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/accept":
				hub.Accept()
			case "/dismiss":
				hub.Dismiss()
			case "":
			default:
				if err := session.Send(line); err != nil {
					fmt.Printf("! %v\n", err)
				}
			}
		}
	}
}

func render(ctx context.Context, s *chathub.ChatSession) {
	printed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.Updates:
			if u.Err != nil {
				fmt.Printf("! %v\n", u.Err)
			}
			if u.Draft != "" {
				fmt.Printf("! not sent: %s\n", u.Draft)
			}
			msgs := s.Messages()
			if len(msgs) < printed {
				printed = 0
			}
			for _, m := range msgs[printed:] {
				who := m.SenderID
				if m.SenderInfo != nil && m.SenderInfo.Name != "" {
					who = m.SenderInfo.Name
				}
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
			}
			printed = len(msgs)
		}
	}
}

func startTelegram(ctx context.Context, cfg *config.Config, hub *chathub.ManagerService, logger zerolog.Logger) error {
	localizer, err := localization.NewLocalizer(cfg.LocalesDir)
	if err != nil {
		return fmt.Errorf("failed to create localizer: %w", err)
	}
	bot, err := telegram.NewBotAPI(cfg.TelegramToken, logger)
	if err != nil {
		return err
	}

	notifier := telegram.NewNotifier(bot, cfg.TelegramChatID, localizer, cfg.Language, logger)
	hub.Trigger.AddListener(notifier)
	go notifier.Run(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()
	go telegram.NewBotService(bot, cfg.TelegramChatID, hub, logger).Run(ctx, updates)
	return nil
}
