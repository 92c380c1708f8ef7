package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"carro-de-som/internal/fulfillment"
	"carro-de-som/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Команды чата
const (
	CommandTTS   = "!tts"
	CommandTTSBG = "!ttsbg"
	CommandVol   = "!vol"
	CommandRedo  = "!refazer"
)

// OrderEngine: операции над заказами, которые вызывает бот
type OrderEngine interface {
	Intake(ctx context.Context, userID, text string, mode models.Mode) error
	AttachMusic(ctx context.Context, userID string, music []byte) error
	SetVolume(ctx context.Context, userID, arg string) error
	Redo(ctx context.Context, userID string) error
}

// Recorder принимает метрики команд
type Recorder interface {
	RecordCommand(command string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(string) {}

// Handler представляет обработчик сообщений Telegram
type Handler struct {
	engine      OrderEngine
	messenger   fulfillment.Messenger
	messages    *fulfillment.Messages
	downloader  *Downloader
	rateLimiter *RateLimiter
	logger      *zap.Logger
	metrics     Recorder
}

// NewHandler создает новый обработчик
func NewHandler(
	engine OrderEngine,
	messenger fulfillment.Messenger,
	messages *fulfillment.Messages,
	downloader *Downloader,
	rateLimiter *RateLimiter,
	logger *zap.Logger,
	metrics Recorder,
) *Handler {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Handler{
		engine:      engine,
		messenger:   messenger,
		messages:    messages,
		downloader:  downloader,
		rateLimiter: rateLimiter,
		logger:      logger,
		metrics:     metrics,
	}
}

// HandleUpdate обрабатывает входящее обновление
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	chatID := msg.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	_, _, isMedia := mediaFile(msg)
	if !isMedia && commandOf(msg.Text) == "" {
		return nil
	}

	if !h.rateLimiter.IsAllowed(chatID) {
		h.logger.Warn("rate limit exceeded", zap.Int64("chat_id", chatID))
		return h.messenger.SendText(ctx, userID, h.messages.TooManyRequests())
	}

	if isMedia {
		h.metrics.RecordCommand("music")
		return h.handleMusic(ctx, userID, msg)
	}

	command, arg := splitCommand(msg.Text)
	h.logger.Debug("получена команда",
		zap.Int64("chat_id", chatID),
		zap.String("command", command))
	h.metrics.RecordCommand(command)

	var err error
	switch command {
	case CommandTTS:
		err = h.engine.Intake(ctx, userID, arg, models.ModePlain)
	case CommandTTSBG:
		err = h.engine.Intake(ctx, userID, arg, models.ModeWithMusic)
	case CommandVol:
		err = h.engine.SetVolume(ctx, userID, arg)
	case CommandRedo:
		err = h.engine.Redo(ctx, userID)
	case "/start", "/ajuda", "/help":
		err = h.messenger.SendText(ctx, userID, h.messages.Help())
	}

	return userError(err)
}

// handleMusic скачивает аудио и прикрепляет его к заказу
func (h *Handler) handleMusic(ctx context.Context, userID string, msg *tgbotapi.Message) error {
	fileID, size, _ := mediaFile(msg)

	music, err := h.downloader.Download(ctx, fileID, size)
	if err != nil {
		h.logger.Warn("ошибка загрузки музыки",
			zap.String("user_id", userID),
			zap.Error(err))

		text := h.messages.MusicDownloadFailed()
		if errors.Is(err, ErrFileTooLarge) {
			text = h.messages.MusicTooLarge(int(h.downloader.MaxSize() >> 20))
		}
		return h.messenger.SendText(ctx, userID, text)
	}

	return userError(h.engine.AttachMusic(ctx, userID, music))
}

// userError скрывает ошибки пользователя: ответ уже отправлен движком
func userError(err error) error {
	if errors.Is(err, fulfillment.ErrInvalidInput) {
		return nil
	}
	return err
}

// commandOf возвращает команду из текста сообщения или пустую строку
func commandOf(text string) string {
	command, _ := splitCommand(text)
	switch command {
	case CommandTTS, CommandTTSBG, CommandVol, CommandRedo, "/start", "/ajuda", "/help":
		return command
	}
	return ""
}

// splitCommand делит текст на команду и аргумент.
// "/start@bot" приводится к "/start".
func splitCommand(text string) (string, string) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		idx = len(text)
	}

	command := strings.ToLower(text[:idx])
	if at := strings.Index(command, "@"); at > 0 && strings.HasPrefix(command, "/") {
		command = command[:at]
	}
	return command, strings.TrimSpace(text[idx:])
}
