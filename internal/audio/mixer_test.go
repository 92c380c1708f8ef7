package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingRunner имитирует ffmpeg и запоминает аргументы
type recordingRunner struct {
	name   string
	args   []string
	output []byte
	err    error
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	if r.err != nil {
		return []byte("codec failure"), r.err
	}
	return nil, os.WriteFile(args[len(args)-1], r.output, 0600)
}

func newTestMixer(t *testing.T, r *recordingRunner) (*Mixer, string) {
	t.Helper()
	tmp := t.TempDir()
	m := NewMixer(zap.NewNop(), MixerConfig{TempDir: tmp})
	m.run = r.run
	return m, tmp
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "временные файлы должны быть удалены")
}

func TestFilterGraph(t *testing.T) {
	assert.Equal(t,
		"[1:a]volume=0.30,apad[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=0,volume=1",
		FilterGraph(0.3))
	assert.Contains(t, FilterGraph(0.1), "volume=0.10,")
	assert.Contains(t, FilterGraph(1), "volume=1.00,")
}

func TestMix_Success(t *testing.T) {
	r := &recordingRunner{output: []byte("OggS-mixed")}
	m, tmp := newTestMixer(t, r)

	out, err := m.Mix(context.Background(), []byte("voice"), []byte("music"), 0.3)
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-mixed"), out)

	assert.Equal(t, "ffmpeg", r.name)
	assert.Contains(t, r.args, FilterGraph(0.3))
	assert.Contains(t, r.args, "libopus")
	assert.Contains(t, r.args, "-ac")
	assertEmptyDir(t, tmp)
}

func TestMix_FFmpegFailure(t *testing.T) {
	r := &recordingRunner{err: errors.New("exit status 1")}
	m, tmp := newTestMixer(t, r)

	out, err := m.Mix(context.Background(), []byte("voice"), []byte("music"), 0.1)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrMixFailed)
	assertEmptyDir(t, tmp)
}

func TestMix_EmptyOutput(t *testing.T) {
	r := &recordingRunner{output: nil}
	m, tmp := newTestMixer(t, r)

	_, err := m.Mix(context.Background(), []byte("voice"), []byte("music"), 0.1)
	assert.ErrorIs(t, err, ErrMixFailed)
	assertEmptyDir(t, tmp)
}

func TestMix_InvalidInput(t *testing.T) {
	r := &recordingRunner{output: []byte("x")}
	m, tmp := newTestMixer(t, r)

	_, err := m.Mix(context.Background(), nil, []byte("music"), 0.1)
	assert.ErrorIs(t, err, ErrMixFailed)

	_, err = m.Mix(context.Background(), []byte("voice"), []byte("music"), 1.5)
	assert.ErrorIs(t, err, ErrMixFailed)

	assert.Empty(t, r.name, "ffmpeg не должен запускаться")
	assertEmptyDir(t, tmp)
}

func TestMix_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg не установлен")
	}

	tmp := t.TempDir()
	m := NewMixer(zap.NewNop(), MixerConfig{TempDir: tmp})

	// мусор на входе должен привести к ErrMixFailed без утечки файлов
	_, err := m.Mix(context.Background(), []byte("not audio"), []byte("not audio"), 0.2)
	assert.ErrorIs(t, err, ErrMixFailed)
	assertEmptyDir(t, tmp)
}
