package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carro-de-som/internal/keypool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	mu       sync.Mutex
	keysSeen []string
	inputs   []string
	voices   []string
	statuses map[string]int // ключ -> статус ответа
	slow     map[string]bool
	audio    []byte
}

func (f *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-goog-api-key")

	var req speechRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.keysSeen = append(f.keysSeen, key)
	f.inputs = append(f.inputs, req.Input)
	f.voices = append(f.voices, req.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	status, ok := f.statuses[key]
	slow := f.slow[key]
	f.mu.Unlock()

	if slow {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return
	}

	if ok && status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"quota"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"audio": []map[string]string{{"data": base64.StdEncoding.EncodeToString(f.audio)}},
	})
}

func newTestService(t *testing.T, f *fakeProvider, timeout time.Duration, keys ...string) (*GeminiService, *keypool.Pool) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	pool, err := keypool.New(keys...)
	require.NoError(t, err)

	svc := NewGeminiService(zap.NewNop(), pool, GeminiConfig{BaseURL: srv.URL, Timeout: timeout}, nil)
	return svc, pool
}

func TestSynthesizeText_Success(t *testing.T) {
	f := &fakeProvider{audio: []byte("OggS-voice")}
	svc, pool := newTestService(t, f, time.Second, "good")

	audio, err := svc.SynthesizeText(context.Background(), "Olá pessoal")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-voice"), audio)
	assert.Equal(t, 1, pool.Remaining())

	require.Len(t, f.inputs, 1)
	assert.True(t, strings.HasPrefix(f.inputs[0], "Read aloud in the style of a Brazilian \"carro de som\""))
	assert.True(t, strings.HasSuffix(f.inputs[0], "\n\nOlá pessoal"))
	assert.Equal(t, DefaultGeminiVoice, f.voices[0])
}

func TestSynthesizeText_StyleAppliedIdentically(t *testing.T) {
	assert.Equal(t, strings.TrimSuffix(StyledText("a"), "a"), strings.TrimSuffix(StyledText("b"), "b"))
	assert.NotEqual(t, "a", StyledText("a"))
}

func TestSynthesizeText_RotatesOnFailure(t *testing.T) {
	f := &fakeProvider{
		audio: []byte("voice"),
		statuses: map[string]int{
			"k1": http.StatusTooManyRequests,
			"k2": http.StatusInternalServerError,
		},
	}
	svc, pool := newTestService(t, f, time.Second, "k1", "k2", "k3")

	audio, err := svc.SynthesizeText(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, []byte("voice"), audio)
	assert.Equal(t, []string{"k1", "k2", "k3"}, f.keysSeen)
	assert.Equal(t, 1, pool.Remaining())

	// исчерпанные ключи больше не используются
	_, err = svc.SynthesizeText(context.Background(), "outro")
	require.NoError(t, err)
	assert.Equal(t, "k3", f.keysSeen[len(f.keysSeen)-1])
	assert.Len(t, f.keysSeen, 4)
}

func TestSynthesizeText_AllKeysExhausted(t *testing.T) {
	f := &fakeProvider{
		statuses: map[string]int{
			"k1": http.StatusTooManyRequests,
			"k2": http.StatusForbidden,
		},
	}
	svc, pool := newTestService(t, f, time.Second, "k1", "k2")

	audio, err := svc.SynthesizeText(context.Background(), "texto")
	assert.Nil(t, audio)
	assert.ErrorIs(t, err, ErrAllKeysExhausted)
	assert.Equal(t, 0, pool.Remaining())

	// повторный вызов не обращается к провайдеру
	_, err = svc.SynthesizeText(context.Background(), "texto")
	assert.ErrorIs(t, err, ErrAllKeysExhausted)
	assert.Len(t, f.keysSeen, 2)
}

func TestSynthesizeText_EmptyPayloadRotates(t *testing.T) {
	f := &fakeProvider{audio: nil}
	svc, pool := newTestService(t, f, time.Second, "k1")

	_, err := svc.SynthesizeText(context.Background(), "texto")
	assert.ErrorIs(t, err, ErrAllKeysExhausted)
	assert.Equal(t, 0, pool.Remaining())
}

func TestSynthesizeText_HungKeyTimesOut(t *testing.T) {
	f := &fakeProvider{
		audio: []byte("voice"),
		slow:  map[string]bool{"slow": true},
	}
	svc, _ := newTestService(t, f, 100*time.Millisecond, "slow", "fast")

	audio, err := svc.SynthesizeText(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, []byte("voice"), audio)
}

func TestSynthesizeText_CanceledContextKeepsKey(t *testing.T) {
	f := &fakeProvider{audio: []byte("voice")}
	svc, pool := newTestService(t, f, time.Second, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SynthesizeText(ctx, "texto")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAllKeysExhausted)
	assert.Equal(t, 1, pool.Remaining())
}
