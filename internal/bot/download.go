package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrFileTooLarge: файл больше допустимого размера
var ErrFileTooLarge = errors.New("файл слишком большой")

var audioExtensions = map[string]bool{
	".mp3": true, ".ogg": true, ".oga": true, ".opus": true,
	".wav": true, ".m4a": true, ".aac": true, ".flac": true,
}

// Downloader скачивает файлы пользователей из Telegram
type Downloader struct {
	api     API
	client  *http.Client
	link    func(file tgbotapi.File) string
	maxSize int64
}

// NewDownloader создает загрузчик с ограничением размера
func NewDownloader(api API, token string, maxSize int64) *Downloader {
	return &Downloader{
		api:     api,
		client:  &http.Client{Timeout: 30 * time.Second},
		link:    func(file tgbotapi.File) string { return file.Link(token) },
		maxSize: maxSize,
	}
}

// MaxSize возвращает лимит размера файла
func (d *Downloader) MaxSize() int64 {
	return d.maxSize
}

// Download скачивает файл по его FileID
func (d *Downloader) Download(ctx context.Context, fileID string, declaredSize int) ([]byte, error) {
	if int64(declaredSize) > d.maxSize {
		return nil, ErrFileTooLarge
	}

	file, err := d.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файла от Telegram: %w", err)
	}
	if int64(file.FileSize) > d.maxSize {
		return nil, ErrFileTooLarge
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.link(file), nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания файла: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неудачный статус скачивания: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("пустой файл")
	}

	return data, nil
}

// mediaFile возвращает аудио вложение сообщения, если оно есть
func mediaFile(msg *tgbotapi.Message) (fileID string, size int, ok bool) {
	switch {
	case msg.Audio != nil:
		return msg.Audio.FileID, msg.Audio.FileSize, true
	case msg.Voice != nil:
		return msg.Voice.FileID, msg.Voice.FileSize, true
	case msg.Document != nil && isAudioDocument(msg.Document):
		return msg.Document.FileID, msg.Document.FileSize, true
	}
	return "", 0, false
}

func isAudioDocument(doc *tgbotapi.Document) bool {
	if strings.HasPrefix(doc.MimeType, "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(doc.FileName))]
}
