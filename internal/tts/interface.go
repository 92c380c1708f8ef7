package tts

import "context"

// TTSService представляет интерфейс для Text-to-Speech сервиса
type TTSService interface {
	// SynthesizeText преобразует текст в аудио
	SynthesizeText(ctx context.Context, text string) ([]byte, error)
}

// Recorder принимает метрики синтеза
type Recorder interface {
	RecordSynthesis(status string, seconds float64)
	RecordKeyRotation(remaining int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSynthesis(string, float64) {}
func (nopRecorder) RecordKeyRotation(int)           {}
