package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dialvision/internal/domain"
)

const telegramMaxMsgLen = 4096

var ErrNoChat = errors.New("telegram: chat id is required")

// Telegram posts completions into one Telegram chat.
type Telegram struct {
	token     string
	chatID    int64
	parseMode string
	logger    *slog.Logger

	once   sync.Once
	bot    *tgbotapi.BotAPI
	botErr error
}

type TelegramConfig struct {
	Token     string
	ChatID    int64
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.ChatID == 0 {
		return nil, ErrNoChat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		chatID:    cfg.ChatID,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends "[deployment] content", split into Telegram sized chunks.
func (t *Telegram) Notify(ctx context.Context, c domain.Completion) error {
	t.once.Do(func() {
		t.bot, t.botErr = tgbotapi.NewBotAPI(t.token)
	})
	if t.botErr != nil {
		return fmt.Errorf("telegram bot: %w", t.botErr)
	}

	text := fmt.Sprintf("[%s] %s", c.Deployment, c.Content)
	for _, chunk := range SplitMessage(text, telegramMaxMsgLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.sendChunk(chunk); err != nil {
			return err
		}
	}
	t.logger.Debug("completion sent to telegram", "deployment", c.Deployment, "chat_id", t.chatID)
	return nil
}

// sendChunk tries the configured parse mode first and falls back to plain
// text when Telegram cannot parse the entities.
func (t *Telegram) sendChunk(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = t.parseMode
	_, err := t.bot.Send(msg)
	if err == nil {
		return nil
	}
	if msg.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
		_, err = t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
	}
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SplitMessage cuts text into pieces of at most maxLen bytes, preferring a
// newline in the second half of each piece as the cut point. Pieces never
// split a UTF-8 sequence. A limit too small to hold any rune returns text
// as a single piece.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if maxLen < utf8.UTFMax {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx >= maxLen/2 {
			cutAt = idx + 1
		}
		for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
			cutAt--
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
