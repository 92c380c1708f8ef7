package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"carro-de-som/internal/fulfillment"
	"carro-de-som/internal/order"
	"carro-de-som/internal/payment"
	"carro-de-som/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSynth struct{}

func (stubSynth) SynthesizeText(_ context.Context, text string) ([]byte, error) {
	return []byte("voice:" + text), nil
}

type stubMixer struct {
	mu      sync.Mutex
	volumes []float64
}

func (m *stubMixer) Mix(_ context.Context, voice, music []byte, volume float64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes = append(m.volumes, volume)
	return append(append([]byte{}, voice...), music...), nil
}

type stubPayments struct {
	mu      sync.Mutex
	charges map[string]*models.Charge
}

func (p *stubPayments) CreateCharge(_ context.Context, _ float64, _ string, metadata map[string]string) (*models.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &models.Charge{ID: "1001", Status: payment.StatusPending, DisplayCode: "pix", Metadata: metadata}
	p.charges[c.ID] = c
	return c, nil
}

func (p *stubPayments) LookupCharge(_ context.Context, id string) (*models.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.charges[id]
	if !ok {
		return nil, payment.ErrLookupFailed
	}
	cp := *c
	cp.Status = payment.StatusApproved
	return &cp, nil
}

func (p *stubPayments) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charges)
}

func slowFileServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Write([]byte("mp3"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func musicUpdate(chatID int64) tgbotapi.Update {
	update := textUpdate(chatID, "")
	update.Message.Audio = &tgbotapi.Audio{FileID: "f1", FileSize: 3}
	return update
}

func TestDispatcher_SlowDownloadKeepsChatOrder(t *testing.T) {
	srv := slowFileServer(t, 200*time.Millisecond)
	api := &fakeAPI{files: map[string]tgbotapi.File{"f1": {FileID: "f1", FileSize: 3, FilePath: "m.mp3"}}}
	engine := &fakeEngine{}
	h := newTestHandler(t, api, engine, &textSink{}, srv.URL)

	queue := order.NewQueue(zap.NewNop())
	d := NewDispatcher(h, queue, zap.NewNop())

	ctx := context.Background()
	d.Dispatch(ctx, textUpdate(42, "!ttsbg Oferta"))
	d.Dispatch(ctx, musicUpdate(42))
	d.Dispatch(ctx, textUpdate(42, "!vol 30"))
	queue.Wait()

	require.Len(t, engine.calls, 3)
	assert.Equal(t, []string{"intake", "music", "volume"},
		[]string{engine.calls[0].op, engine.calls[1].op, engine.calls[2].op})
}

func TestDispatcher_OtherChatsNotBlocked(t *testing.T) {
	srv := slowFileServer(t, 300*time.Millisecond)
	api := &fakeAPI{files: map[string]tgbotapi.File{"f1": {FileID: "f1", FileSize: 3, FilePath: "m.mp3"}}}
	engine := &fakeEngine{}
	h := newTestHandler(t, api, engine, &textSink{}, srv.URL)

	queue := order.NewQueue(zap.NewNop())
	d := NewDispatcher(h, queue, zap.NewNop())

	ctx := context.Background()
	d.Dispatch(ctx, musicUpdate(42))
	d.Dispatch(ctx, textUpdate(7, "!tts Oi"))

	assert.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.calls) == 1 && engine.calls[0].userID == "7"
	}, 200*time.Millisecond, 5*time.Millisecond)

	queue.Wait()
	assert.Len(t, engine.calls, 2)
}

func TestDispatcher_CanceledContextStillHandles(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestHandler(t, &fakeAPI{}, engine, &textSink{}, "")
	queue := order.NewQueue(zap.NewNop())
	d := NewDispatcher(h, queue, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, textUpdate(42, "!refazer"))
	d.Dispatch(ctx, tgbotapi.Update{})
	queue.Wait()

	require.Len(t, engine.calls, 1)
	assert.Equal(t, "redo", engine.calls[0].op)
}

// Музыка скачивается медленно, громкость и подтверждение оплаты приходят следом:
// микшер должен получить 0.30, а не громкость по умолчанию.
func TestDispatcher_MusicVolumeThenPaymentInArrivalOrder(t *testing.T) {
	srv := slowFileServer(t, 200*time.Millisecond)
	api := &fakeAPI{files: map[string]tgbotapi.File{"f1": {FileID: "f1", FileSize: 3, FilePath: "m.mp3"}}}

	orders := order.NewStore(0)
	mixer := &stubMixer{}
	payments := &stubPayments{charges: make(map[string]*models.Charge)}
	sink := &textSink{}
	engine := fulfillment.NewEngine(fulfillment.Deps{
		Orders:    orders,
		Synth:     stubSynth{},
		Mixer:     mixer,
		Payments:  payments,
		Messenger: sink,
		Logger:    zap.NewNop(),
	}, fulfillment.Options{Price: 5, Description: "Locução"})

	dl := NewDownloader(api, "token", 1<<20)
	dl.link = func(file tgbotapi.File) string { return srv.URL + "/" + file.FilePath }
	h := NewHandler(engine, sink, engine.Messages(), dl, NewRateLimiter(100, time.Minute), zap.NewNop(), nil)
	d := NewDispatcher(h, engine.Queue(), zap.NewNop())

	ctx := context.Background()
	d.Dispatch(ctx, textUpdate(42, "!ttsbg Oferta"))
	d.Dispatch(ctx, musicUpdate(42))
	d.Dispatch(ctx, textUpdate(42, "!vol 30"))

	require.Eventually(t, func() bool { return payments.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, engine.ConfirmPayment(ctx, "1001"))
	engine.Wait()

	o, ok := orders.Get("42")
	require.True(t, ok)
	assert.Equal(t, models.StatusDelivered, o.Status)
	assert.Equal(t, []byte("mp3"), o.Music)
	assert.InDelta(t, 0.30, o.MusicVolume, 1e-9)

	require.Len(t, mixer.volumes, 1)
	assert.InDelta(t, 0.30, mixer.volumes[0], 1e-9)
	require.Len(t, sink.voices, 1)
	assert.NotContains(t, sink.texts, engine.Messages().SendMusicFirst())
}
