package metrics

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler обрабатывает HTTP запросы для метрик
type Handler struct {
	metrics *Metrics
	logger  *zap.Logger
	keys    func() int
}

// NewHandler создает новый обработчик метрик.
// keys возвращает число доступных ключей провайдера, может быть nil.
func NewHandler(metrics *Metrics, logger *zap.Logger, keys func() int) *Handler {
	return &Handler{
		metrics: metrics,
		logger:  logger,
		keys:    keys,
	}
}

// MetricsHandler возвращает HTTP handler для Prometheus метрик
func (h *Handler) MetricsHandler() http.Handler {
	return h.metrics.Handler()
}

// HealthHandler возвращает статус здоровья сервиса.
// Без доступных ключей синтеза сервис деградирован.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"service": "carro-de-som",
	}
	code := http.StatusOK

	if h.keys != nil {
		remaining := h.keys()
		status["tts_keys_remaining"] = remaining
		if remaining == 0 {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("ошибка записи ответа health", zap.Error(err))
	}
}
