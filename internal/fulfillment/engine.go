package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"carro-de-som/internal/audio"
	"carro-de-som/internal/order"
	"carro-de-som/internal/payment"
	"carro-de-som/internal/tts"
	"carro-de-som/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput: ошибка пользователя, состояние заказа не меняется
	ErrInvalidInput = errors.New("некорректный запрос пользователя")
	// ErrPaymentLookup: не удалось проверить платеж, провайдер должен повторить webhook
	ErrPaymentLookup = errors.New("ошибка проверки платежа")
)

// Synthesizer синтезирует голос из текста
type Synthesizer interface {
	SynthesizeText(ctx context.Context, text string) ([]byte, error)
}

// Mixer накладывает музыку на голос
type Mixer interface {
	Mix(ctx context.Context, voice, music []byte, volume float64) ([]byte, error)
}

// PaymentGateway создает и проверяет платежи
type PaymentGateway interface {
	CreateCharge(ctx context.Context, amount float64, description string, metadata map[string]string) (*models.Charge, error)
	LookupCharge(ctx context.Context, chargeID string) (*models.Charge, error)
}

// Messenger доставляет ответы пользователю через чат
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
	SendImage(ctx context.Context, userID string, png []byte, caption string) error
	SendVoice(ctx context.Context, userID string, audio []byte) error
}

// Journal ведет журнал платежей; ошибки журнала не влияют на заказ
type Journal interface {
	RecordCharge(ctx context.Context, record *models.ChargeRecord) error
	MarkPaid(ctx context.Context, chargeID string, at time.Time) error
	MarkDelivered(ctx context.Context, chargeID string, at time.Time) error
}

// Metrics принимает метрики заказов
type Metrics interface {
	RecordOrderEvent(event string)
	RecordFulfillment(result string, seconds float64)
}

// Deps содержит зависимости движка
type Deps struct {
	Orders    *order.Store
	Queue     *order.Queue
	Synth     Synthesizer
	Mixer     Mixer
	Payments  PaymentGateway
	Messenger Messenger
	Journal   Journal
	Metrics   Metrics
	Logger    *zap.Logger
}

// Options содержит параметры заказа
type Options struct {
	Price       float64
	Description string
}

// Engine управляет жизненным циклом заказов: прием, оплата, синтез, микширование, доставка
type Engine struct {
	orders    *order.Store
	queue     *order.Queue
	synth     Synthesizer
	mixer     Mixer
	payments  PaymentGateway
	messenger Messenger
	journal   Journal
	metrics   Metrics
	logger    *zap.Logger
	messages  *Messages
	opts      Options

	newID func() string
	now   func() time.Time
}

// NewEngine создает новый движок исполнения заказов
func NewEngine(deps Deps, opts Options) *Engine {
	e := &Engine{
		orders:    deps.Orders,
		queue:     deps.Queue,
		synth:     deps.Synth,
		mixer:     deps.Mixer,
		payments:  deps.Payments,
		messenger: deps.Messenger,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		messages:  NewMessages(opts.Price),
		opts:      opts,
		newID:     uuid.NewString,
		now:       time.Now,
	}

	if e.orders == nil {
		e.orders = order.NewStore(0)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.queue == nil {
		e.queue = order.NewQueue(e.logger)
	}
	if e.journal == nil {
		e.journal = nopJournal{}
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}

	return e
}

// Messages возвращает тексты для пользователей
func (e *Engine) Messages() *Messages {
	return e.messages
}

// Orders возвращает хранилище заказов
func (e *Engine) Orders() *order.Store {
	return e.orders
}

// Queue возвращает очередь задач по пользователям; через нее же идут сообщения чата
func (e *Engine) Queue() *order.Queue {
	return e.queue
}

var newlines = regexp.MustCompile(`\n+`)

// NormalizeText обрезает пробелы и заменяет переводы строк на паузы
func NormalizeText(raw string) string {
	text := strings.ReplaceAll(raw, "\r", "")
	text = strings.TrimSpace(text)
	return newlines.ReplaceAllString(text, ". ")
}

// ParseVolume разбирает громкость в процентах: целое от 0 до 100
func ParseVolume(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("%w: громкость не число: %q", ErrInvalidInput, arg)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("%w: громкость вне диапазона: %d", ErrInvalidInput, v)
	}
	return v, nil
}

// Intake создает новый заказ (заменяя предыдущий) и выставляет счет
func (e *Engine) Intake(ctx context.Context, userID, raw string, mode models.Mode) error {
	text := NormalizeText(raw)
	if text == "" {
		e.reply(ctx, userID, e.messages.EmptyText())
		return fmt.Errorf("%w: пустой текст", ErrInvalidInput)
	}

	ss := e.orders.Acquire(userID)
	defer ss.Release()

	o := models.Order{
		ID:          e.newID(),
		Text:        text,
		Mode:        mode,
		MusicVolume: models.DefaultMusicVolume,
		Status:      models.StatusIntake,
	}

	charge, err := e.payments.CreateCharge(ctx, e.opts.Price, e.opts.Description, map[string]string{
		models.MetadataUserID:  userID,
		models.MetadataOrderID: o.ID,
		models.MetadataText:    text,
	})
	if err != nil {
		e.metrics.RecordOrderEvent("charge_failed")
		e.reply(ctx, userID, e.messages.ChargeFailed())
		return fmt.Errorf("ошибка создания платежа: %w", err)
	}

	o.ChargeID = charge.ID
	if err := order.Transition(&o, order.EventCheckout); err != nil {
		return err
	}

	if prev, ok := ss.Get(); ok {
		e.logger.Info("новый заказ заменяет предыдущий",
			zap.String("user_id", userID),
			zap.String("previous_order_id", prev.ID),
			zap.String("previous_status", string(prev.Status)))
	}
	ss.Put(o)

	e.metrics.RecordOrderEvent("intake")
	e.logger.Info("заказ создан",
		zap.String("user_id", userID),
		zap.String("order_id", o.ID),
		zap.String("charge_id", o.ChargeID),
		zap.String("mode", string(mode)))

	if err := e.journal.RecordCharge(ctx, &models.ChargeRecord{
		ChargeID:  charge.ID,
		OrderID:   o.ID,
		UserID:    userID,
		Text:      text,
		Mode:      mode,
		Amount:    e.opts.Price,
		Status:    models.ChargeStatusPending,
		CreatedAt: e.now(),
	}); err != nil {
		e.logger.Warn("ошибка записи платежа в журнал", zap.String("charge_id", charge.ID), zap.Error(err))
	}

	e.reply(ctx, userID, e.messages.PaymentInstructions(charge.DisplayCode, mode))
	if len(charge.QRImage) > 0 {
		if err := e.messenger.SendImage(ctx, userID, charge.QRImage, e.messages.QRCaption()); err != nil {
			e.logger.Warn("ошибка отправки QR кода", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return nil
}

// AttachMusic сохраняет фоновую музыку для заказа, ожидающего оплату
func (e *Engine) AttachMusic(ctx context.Context, userID string, music []byte) error {
	ss := e.orders.Acquire(userID)
	defer ss.Release()

	o, ok := ss.Get()
	switch {
	case !ok || o.Mode != models.ModeWithMusic:
		e.reply(ctx, userID, e.messages.MusicNotExpected())
		return fmt.Errorf("%w: заказ с музыкой не найден", ErrInvalidInput)
	case o.Status != models.StatusAwaitingPayment:
		e.reply(ctx, userID, e.messages.MusicTooLate())
		return fmt.Errorf("%w: музыка после оплаты", ErrInvalidInput)
	case len(music) == 0:
		e.reply(ctx, userID, e.messages.MusicDownloadFailed())
		return fmt.Errorf("%w: пустой аудио файл", ErrInvalidInput)
	}

	o.Music = music
	ss.Put(o)

	e.metrics.RecordOrderEvent("music")
	e.logger.Info("музыка сохранена",
		zap.String("user_id", userID),
		zap.String("order_id", o.ID),
		zap.Int("music_size", len(music)))

	e.reply(ctx, userID, e.messages.MusicReceived())
	return nil
}

// SetVolume задает громкость музыки в процентах
func (e *Engine) SetVolume(ctx context.Context, userID, arg string) error {
	percent, err := ParseVolume(arg)
	if err != nil {
		e.reply(ctx, userID, e.messages.VolumeUsage())
		return err
	}

	ss := e.orders.Acquire(userID)
	defer ss.Release()

	_, found, err := ss.Update(func(o *models.Order) error {
		if !o.HasMusic() {
			return fmt.Errorf("%w: музыка не загружена", ErrInvalidInput)
		}
		o.MusicVolume = float64(percent) / 100
		return nil
	})
	if !found && err == nil {
		err = fmt.Errorf("%w: заказ не найден", ErrInvalidInput)
	}
	if err != nil {
		e.reply(ctx, userID, e.messages.SendMusicFirst())
		return err
	}

	e.metrics.RecordOrderEvent("volume")
	e.reply(ctx, userID, e.messages.VolumeSet(percent))
	return nil
}

// ConfirmPayment проверяет платеж у провайдера и запускает исполнение заказа.
// Несовпадающие и повторные подтверждения игнорируются.
func (e *Engine) ConfirmPayment(ctx context.Context, chargeID string) error {
	charge, err := e.payments.LookupCharge(ctx, chargeID)
	if errors.Is(err, payment.ErrInvalidChargeID) {
		// повтор такого уведомления никогда не пройдет
		e.logger.Warn("уведомление с некорректным ID платежа", zap.String("charge_id", chargeID))
		e.metrics.RecordOrderEvent("invalid_charge_id")
		return nil
	}
	if err != nil {
		e.metrics.RecordOrderEvent("lookup_failed")
		return fmt.Errorf("%w: %v", ErrPaymentLookup, err)
	}

	if charge.Status != payment.StatusApproved {
		e.logger.Info("платеж еще не одобрен",
			zap.String("charge_id", chargeID),
			zap.String("status", charge.Status))
		return nil
	}

	userID := charge.Metadata[models.MetadataUserID]
	if userID == "" {
		e.logger.Warn("в платеже нет пользователя", zap.String("charge_id", chargeID))
		e.metrics.RecordOrderEvent("unmatched")
		return nil
	}

	e.dispatch(ctx, userID, func(taskCtx context.Context) {
		e.completePayment(taskCtx, userID, charge)
	})
	return nil
}

// completePayment переводит заказ в оплаченный и исполняет его ровно один раз
func (e *Engine) completePayment(ctx context.Context, userID string, charge *models.Charge) {
	ss := e.orders.Acquire(userID)
	defer ss.Release()

	o, ok := ss.Get()
	if !ok || !matchesCharge(o, charge) {
		e.metrics.RecordOrderEvent("unmatched")
		e.logger.Info("платеж не соответствует текущему заказу",
			zap.String("user_id", userID),
			zap.String("charge_id", charge.ID))
		return
	}

	if err := order.Transition(&o, order.EventPay); err != nil {
		e.metrics.RecordOrderEvent("duplicate_payment")
		e.logger.Info("повторное подтверждение платежа",
			zap.String("user_id", userID),
			zap.String("charge_id", charge.ID),
			zap.String("status", string(o.Status)))
		return
	}
	ss.Put(o)

	e.metrics.RecordOrderEvent("paid")
	if err := e.journal.MarkPaid(ctx, charge.ID, e.now()); err != nil {
		e.logger.Warn("ошибка обновления журнала", zap.String("charge_id", charge.ID), zap.Error(err))
	}

	e.reply(ctx, userID, e.messages.PaymentConfirmed())
	if err := e.fulfill(ctx, ss, o); err != nil {
		e.logger.Error("ошибка исполнения оплаченного заказа",
			zap.String("user_id", userID),
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

// Redo повторно генерирует и доставляет оплаченный заказ без новой оплаты
func (e *Engine) Redo(ctx context.Context, userID string) error {
	ss := e.orders.Acquire(userID)
	defer ss.Release()

	o, ok := ss.Get()
	if !ok {
		e.reply(ctx, userID, e.messages.NothingToRedo())
		return fmt.Errorf("%w: заказ не найден", ErrInvalidInput)
	}

	if err := order.Transition(&o, order.EventRedo); err != nil {
		e.reply(ctx, userID, e.messages.RedoNotPaid())
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ss.Put(o)

	e.metrics.RecordOrderEvent("redo")
	if err := e.fulfill(ctx, ss, o); err != nil {
		return err
	}

	e.reply(ctx, userID, e.messages.RedoDone())
	return nil
}

// fulfill: единая точка завершения заказа для оплаты и повтора:
// синтез, микширование при необходимости, доставка.
func (e *Engine) fulfill(ctx context.Context, ss *order.Session, o models.Order) error {
	started := time.Now()

	audioData, err := e.render(ctx, o)
	if err != nil {
		e.metrics.RecordFulfillment(failureKind(err), time.Since(started).Seconds())
		e.reply(ctx, o.UserID, e.failureMessage(err))
		return err
	}

	if err := e.messenger.SendVoice(ctx, o.UserID, audioData); err != nil {
		e.metrics.RecordFulfillment("delivery_failed", time.Since(started).Seconds())
		e.reply(ctx, o.UserID, e.messages.FulfillmentFailed())
		return fmt.Errorf("ошибка доставки аудио: %w", err)
	}

	if err := order.Transition(&o, order.EventDeliver); err != nil {
		return err
	}
	o.Deliveries++
	ss.Put(o)

	e.metrics.RecordFulfillment("delivered", time.Since(started).Seconds())
	e.logger.Info("локуция доставлена",
		zap.String("user_id", o.UserID),
		zap.String("order_id", o.ID),
		zap.Int("deliveries", o.Deliveries),
		zap.Int("audio_size", len(audioData)))

	if err := e.journal.MarkDelivered(ctx, o.ChargeID, e.now()); err != nil {
		e.logger.Warn("ошибка обновления журнала", zap.String("charge_id", o.ChargeID), zap.Error(err))
	}

	return nil
}

// render синтезирует голос и при необходимости накладывает музыку
func (e *Engine) render(ctx context.Context, o models.Order) ([]byte, error) {
	voice, err := e.synth.SynthesizeText(ctx, o.Text)
	if err != nil {
		return nil, fmt.Errorf("ошибка синтеза: %w", err)
	}

	if !o.NeedsMix() {
		return voice, nil
	}

	mixed, err := e.mixer.Mix(ctx, voice, o.Music, o.MusicVolume)
	if err != nil {
		return nil, fmt.Errorf("ошибка микширования: %w", err)
	}
	return mixed, nil
}

// Wait ожидает завершения всех задач в очереди пользователей
func (e *Engine) Wait() {
	e.queue.Wait()
}

// dispatch ставит исполнение заказа в очередь пользователя: оно выполнится после
// уже поступивших событий этого пользователя и не зависит от отмены ctx
func (e *Engine) dispatch(ctx context.Context, userID string, fn func(ctx context.Context)) {
	taskCtx := context.WithoutCancel(ctx)
	e.queue.Enqueue(userID, func() {
		fn(taskCtx)
	})
}

// reply отправляет текст пользователю, ошибки только логируются
func (e *Engine) reply(ctx context.Context, userID, text string) {
	if err := e.messenger.SendText(ctx, userID, text); err != nil {
		e.logger.Warn("ошибка отправки сообщения",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (e *Engine) failureMessage(err error) string {
	switch {
	case errors.Is(err, tts.ErrAllKeysExhausted):
		return e.messages.ProviderExhausted()
	case errors.Is(err, audio.ErrMixFailed):
		return e.messages.MixFailed()
	default:
		return e.messages.FulfillmentFailed()
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, tts.ErrAllKeysExhausted):
		return "provider_exhausted"
	case errors.Is(err, audio.ErrMixFailed):
		return "mix_failed"
	default:
		return "synthesis_failed"
	}
}

// matchesCharge проверяет, что метаданные платежа относятся к этому заказу
func matchesCharge(o models.Order, charge *models.Charge) bool {
	if o.Text != charge.Metadata[models.MetadataText] {
		return false
	}
	if id := charge.Metadata[models.MetadataOrderID]; id != "" && id != o.ID {
		return false
	}
	if o.ChargeID != "" && charge.ID != "" && o.ChargeID != charge.ID {
		return false
	}
	return true
}

type nopJournal struct{}

func (nopJournal) RecordCharge(context.Context, *models.ChargeRecord) error { return nil }
func (nopJournal) MarkPaid(context.Context, string, time.Time) error        { return nil }
func (nopJournal) MarkDelivered(context.Context, string, time.Time) error   { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordOrderEvent(string)           {}
func (nopMetrics) RecordFulfillment(string, float64) {}
