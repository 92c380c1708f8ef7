package bot

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API: часть tgbotapi.BotAPI, которой пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// TelegramMessenger отправляет ответы пользователям в Telegram
type TelegramMessenger struct {
	api    API
	logger *zap.Logger
}

// NewTelegramMessenger создает отправителя сообщений
func NewTelegramMessenger(api API, logger *zap.Logger) *TelegramMessenger {
	return &TelegramMessenger{api: api, logger: logger}
}

// SendText отправляет текст; при ошибке HTML разметки повторяет без нее
func (m *TelegramMessenger) SendText(ctx context.Context, userID, text string) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}

	hasHTML := strings.Contains(text, "<") && strings.Contains(text, ">")

	msg := tgbotapi.NewMessage(chatID, text)
	if hasHTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	if _, err := m.api.Send(msg); err != nil {
		if !hasHTML {
			return fmt.Errorf("ошибка отправки сообщения: %w", err)
		}

		m.logger.Info("повторная отправка как обычный текст",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		fallback := tgbotapi.NewMessage(chatID, html.UnescapeString(htmlTags.ReplaceAllString(text, "")))
		if _, err := m.api.Send(fallback); err != nil {
			return fmt.Errorf("ошибка отправки сообщения: %w", err)
		}
	}

	return nil
}

// SendImage отправляет PNG изображение (QR код)
func (m *TelegramMessenger) SendImage(ctx context.Context, userID string, png []byte, caption string) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "pix.png", Bytes: png})
	photo.Caption = caption

	if _, err := m.api.Send(photo); err != nil {
		return fmt.Errorf("ошибка отправки изображения: %w", err)
	}
	return nil
}

// SendVoice отправляет голосовое сообщение (ogg/opus)
func (m *TelegramMessenger) SendVoice(ctx context.Context, userID string, audio []byte) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "locucao.ogg", Bytes: audio})
	if _, err := m.api.Send(voice); err != nil {
		return fmt.Errorf("ошибка отправки голосового сообщения: %w", err)
	}

	m.logger.Debug("голосовое сообщение отправлено",
		zap.Int64("chat_id", chatID),
		zap.Int("size", len(audio)))
	return nil
}

func parseChatID(userID string) (int64, error) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный id чата %q: %w", userID, err)
	}
	return chatID, nil
}
