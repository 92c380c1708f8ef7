package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrMixFailed возвращается при любой ошибке микширования
var ErrMixFailed = errors.New("ошибка микширования аудио")

// commandRunner запускает внешнюю команду и возвращает её stderr
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.Bytes(), err
}

// MixerConfig содержит настройки микшера
type MixerConfig struct {
	FFmpegPath string
	TempDir    string // пусто: системный каталог
}

// Mixer накладывает фоновую музыку на голос через FFmpeg
type Mixer struct {
	logger *zap.Logger
	cfg    MixerConfig
	run    commandRunner
}

// NewMixer создает новый микшер
func NewMixer(logger *zap.Logger, cfg MixerConfig) *Mixer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	return &Mixer{
		logger: logger,
		cfg:    cfg,
		run:    runCommand,
	}
}

// FilterGraph возвращает граф фильтров FFmpeg для указанной громкости музыки.
// Длительность результата совпадает с длительностью голоса.
func FilterGraph(volume float64) string {
	return fmt.Sprintf("[1:a]volume=%s,apad[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=0,volume=1",
		strconv.FormatFloat(volume, 'f', 2, 64))
}

// Mix смешивает голос и музыку; временные файлы удаляются в любом случае
func (m *Mixer) Mix(ctx context.Context, voice, music []byte, volume float64) ([]byte, error) {
	if len(voice) == 0 || len(music) == 0 {
		return nil, fmt.Errorf("%w: пустой входной трек", ErrMixFailed)
	}
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("%w: громкость %.2f вне диапазона [0,1]", ErrMixFailed, volume)
	}

	workDir, err := os.MkdirTemp(m.cfg.TempDir, "mix_")
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка создания временной директории: %v", ErrMixFailed, err)
	}
	defer m.cleanupDir(workDir)

	voiceFile := filepath.Join(workDir, "voice.ogg")
	musicFile := filepath.Join(workDir, "music.mp3")
	outputFile := filepath.Join(workDir, "mixed.ogg")

	if err := os.WriteFile(voiceFile, voice, 0600); err != nil {
		return nil, fmt.Errorf("%w: ошибка записи голоса: %v", ErrMixFailed, err)
	}
	if err := os.WriteFile(musicFile, music, 0600); err != nil {
		return nil, fmt.Errorf("%w: ошибка записи музыки: %v", ErrMixFailed, err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", voiceFile,
		"-i", musicFile,
		"-filter_complex", FilterGraph(volume),
		"-ac", "1",
		"-c:a", "libopus",
		"-f", "ogg",
		outputFile,
	}

	m.logger.Info("🎚 микшируем голос с музыкой",
		zap.Int("voice_size", len(voice)),
		zap.Int("music_size", len(music)),
		zap.Float64("volume", volume))

	started := time.Now()
	stderr, err := m.run(ctx, m.cfg.FFmpegPath, args...)
	if err != nil {
		m.logger.Error("ошибка выполнения ffmpeg",
			zap.Error(err),
			zap.String("stderr", string(stderr)))
		return nil, fmt.Errorf("%w: %v", ErrMixFailed, err)
	}

	mixed, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка чтения результата: %v", ErrMixFailed, err)
	}
	if len(mixed) == 0 {
		return nil, fmt.Errorf("%w: пустой результат", ErrMixFailed)
	}

	m.logger.Info("🎚 микширование завершено",
		zap.Int("output_size", len(mixed)),
		zap.Duration("duration", time.Since(started)))

	return mixed, nil
}

// cleanupDir удаляет временную директорию
func (m *Mixer) cleanupDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("ошибка удаления временной директории",
			zap.String("dir", dir),
			zap.Error(err))
	}
}
