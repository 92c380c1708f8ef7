package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger   *zap.Logger
	gatherer prometheus.Gatherer

	// Счетчики
	orderEvents  *prometheus.CounterVec
	fulfillments *prometheus.CounterVec
	ttsRequests  *prometheus.CounterVec
	keyRotations prometheus.Counter
	webhooks     *prometheus.CounterVec
	commands     *prometheus.CounterVec

	// Гистограммы
	fulfillmentTime *prometheus.HistogramVec
	ttsResponseTime *prometheus.HistogramVec

	// Gauge метрики
	keysRemaining prometheus.Gauge
	activeOrders  prometheus.Gauge

	mu sync.RWMutex
}

// New создает метрики в глобальном реестре Prometheus
func New(logger *zap.Logger) *Metrics {
	return NewWithRegistry(logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry создает метрики в указанном реестре
func NewWithRegistry(logger *zap.Logger, registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		logger:   logger,
		gatherer: gatherer,

		orderEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_events_total",
				Help: "События жизненного цикла заказов",
			},
			[]string{"event"}, // intake, music, volume, paid, redo, unmatched, duplicate_payment
		),

		fulfillments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillments_total",
				Help: "Результаты исполнения заказов",
			},
			[]string{"result"}, // delivered, provider_exhausted, mix_failed, synthesis_failed, delivery_failed
		),

		ttsRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tts_requests_total",
				Help: "Запросы к провайдеру синтеза речи",
			},
			[]string{"status"}, // success, failed
		),

		keyRotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tts_key_rotations_total",
				Help: "Количество исчерпанных ключей провайдера",
			},
		),

		webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhooks_total",
				Help: "Входящие уведомления о платежах",
			},
			[]string{"result"},
		),

		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_commands_total",
				Help: "Команды пользователей в чате",
			},
			[]string{"command"},
		),

		fulfillmentTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_duration_seconds",
				Help:    "Время исполнения заказа в секундах",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"result"},
		),

		ttsResponseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tts_response_time_seconds",
				Help:    "Время ответа провайдера синтеза в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		keysRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tts_keys_remaining",
				Help: "Количество неисчерпанных ключей провайдера",
			},
		),

		activeOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_orders",
				Help: "Количество заказов в памяти",
			},
		),
	}

	registerer.MustRegister(
		m.orderEvents,
		m.fulfillments,
		m.ttsRequests,
		m.keyRotations,
		m.webhooks,
		m.commands,
		m.fulfillmentTime,
		m.ttsResponseTime,
		m.keysRemaining,
		m.activeOrders,
	)

	return m
}

// IncrementCounter увеличивает счетчик
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counter *prometheus.CounterVec

	switch name {
	case "order_events_total":
		counter = m.orderEvents
	case "fulfillments_total":
		counter = m.fulfillments
	case "tts_requests_total":
		counter = m.ttsRequests
	case "payment_webhooks_total":
		counter = m.webhooks
	case "chat_commands_total":
		counter = m.commands
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	counter.WithLabelValues(labels...).Inc()
}

// SetGauge устанавливает значение gauge метрики
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var gauge prometheus.Gauge

	switch name {
	case "tts_keys_remaining":
		gauge = m.keysRemaining
	case "active_orders":
		gauge = m.activeOrders
	default:
		m.logger.Error("неизвестная gauge метрика", zap.String("name", name))
		return
	}

	gauge.Set(value)
}

// ObserveHistogram добавляет наблюдение в гистограмму
func (m *Metrics) ObserveHistogram(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "fulfillment_duration_seconds":
		m.fulfillmentTime.WithLabelValues(labels...).Observe(value)
	case "tts_response_time_seconds":
		m.ttsResponseTime.WithLabelValues(labels...).Observe(value)
	default:
		m.logger.Error("неизвестная гистограмма", zap.String("name", name))
	}
}

// RecordOrderEvent записывает событие заказа
func (m *Metrics) RecordOrderEvent(event string) {
	m.IncrementCounter("order_events_total", event)
}

// RecordFulfillment записывает результат исполнения заказа
func (m *Metrics) RecordFulfillment(result string, seconds float64) {
	m.IncrementCounter("fulfillments_total", result)
	m.ObserveHistogram("fulfillment_duration_seconds", seconds, result)
}

// RecordSynthesis записывает запрос к провайдеру синтеза
func (m *Metrics) RecordSynthesis(status string, seconds float64) {
	m.IncrementCounter("tts_requests_total", status)
	m.ObserveHistogram("tts_response_time_seconds", seconds, status)
}

// RecordKeyRotation записывает исчерпание ключа
func (m *Metrics) RecordKeyRotation(remaining int) {
	m.keyRotations.Inc()
	m.SetGauge("tts_keys_remaining", float64(remaining))
	m.logger.Debug("ключ провайдера исчерпан", zap.Int("remaining", remaining))
}

// RecordWebhook записывает результат обработки уведомления
func (m *Metrics) RecordWebhook(result string) {
	m.IncrementCounter("payment_webhooks_total", result)
}

// RecordCommand записывает команду пользователя
func (m *Metrics) RecordCommand(command string) {
	m.IncrementCounter("chat_commands_total", command)
}

// SetActiveOrders обновляет количество заказов в памяти
func (m *Metrics) SetActiveOrders(n int) {
	m.SetGauge("active_orders", float64(n))
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
