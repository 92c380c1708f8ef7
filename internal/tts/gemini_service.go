package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"carro-de-som/internal/keypool"

	"go.uber.org/zap"
)

// ErrAllKeysExhausted возвращается, когда ни один ключ не смог синтезировать речь
var ErrAllKeysExhausted = errors.New("все ключи API синтеза исчерпаны")

const (
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash-preview-tts:generateSpeech"
	DefaultGeminiVoice = "Enceladus"

	// stylePrompt оборачивает каждый текст в стиль "carro de som"
	stylePrompt = `Read aloud in the style of a Brazilian "carro de som" street announcement: energetic, lively, highly engaging, and attention-grabbing. Use a cheerful and enthusiastic tone with dynamic intonation, exaggerated emphasis on key words, and rhythmic pacing that mimics promotional loudspeakers. The delivery should sound festive, persuasive, and impossible to ignore, as if attracting a crowd in a busy street or neighborhood.

`
)

// GeminiConfig содержит настройки провайдера синтеза
type GeminiConfig struct {
	BaseURL string
	Voice   string
	Timeout time.Duration // таймаут одной попытки
}

// GeminiService синтезирует речь через Gemini TTS, переключая ключи при ошибках
type GeminiService struct {
	logger  *zap.Logger
	pool    *keypool.Pool
	cfg     GeminiConfig
	client  *http.Client
	metrics Recorder
}

// NewGeminiService создает новый сервис синтеза
func NewGeminiService(logger *zap.Logger, pool *keypool.Pool, cfg GeminiConfig, metrics Recorder) *GeminiService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiURL
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultGeminiVoice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &GeminiService{
		logger: logger,
		pool:   pool,
		cfg:    cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		metrics: metrics,
	}
}

type speechRequest struct {
	Input       string      `json:"input"`
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig struct {
		VoiceName string `json:"voiceName"`
	} `json:"prebuiltVoiceConfig"`
}

type speechResponse struct {
	Audio []struct {
		Data string `json:"data"`
	} `json:"audio"`
}

// StyledText возвращает текст, обернутый в стилистический промпт
func StyledText(text string) string {
	return stylePrompt + text
}

// SynthesizeText преобразует текст в аудио, перебирая ключи до первого успеха
func (s *GeminiService) SynthesizeText(ctx context.Context, text string) ([]byte, error) {
	styled := StyledText(text)
	started := time.Now()

	var lastErr error
	for {
		key, err := s.pool.Current()
		if err != nil {
			s.metrics.RecordSynthesis("exhausted", time.Since(started).Seconds())
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrAllKeysExhausted, lastErr)
			}
			return nil, ErrAllKeysExhausted
		}

		audio, err := s.attempt(ctx, key.Value, styled)
		if err == nil {
			s.metrics.RecordSynthesis("success", time.Since(started).Seconds())
			s.logger.Info("🎵 аудио успешно сгенерировано",
				zap.Int("key_index", key.Index),
				zap.Int("text_length", len(text)),
				zap.Int("audio_size", len(audio)))
			return audio, nil
		}

		// отмена родительского контекста не означает проблему с ключом
		if ctx.Err() != nil {
			s.metrics.RecordSynthesis("canceled", time.Since(started).Seconds())
			return nil, fmt.Errorf("синтез прерван: %w", ctx.Err())
		}

		lastErr = err
		s.pool.Advance(key)
		s.metrics.RecordKeyRotation(s.pool.Remaining())
		s.logger.Warn("ключ исчерпан, пробуем следующий",
			zap.Int("key_index", key.Index),
			zap.Int("remaining", s.pool.Remaining()),
			zap.Error(err))
	}
}

// attempt выполняет один запрос к провайдеру с указанным ключом
func (s *GeminiService) attempt(ctx context.Context, apiKey, styled string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	payload := speechRequest{Input: styled}
	payload.VoiceConfig.PrebuiltVoiceConfig.VoiceName = s.cfg.Voice

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("неожиданный статус от провайдера синтеза: %d, тело: %s", resp.StatusCode, respBody)
	}

	var result speechResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if len(result.Audio) == 0 || result.Audio[0].Data == "" {
		return nil, fmt.Errorf("ответ не содержит аудио")
	}

	audio, err := base64.StdEncoding.DecodeString(result.Audio[0].Data)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования аудио: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("пустое аудио в ответе")
	}

	return audio, nil
}
