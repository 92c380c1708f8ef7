package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxBodySize ограничивает размер тела уведомления
const maxBodySize = 1 << 20

var errMissingID = errors.New("в уведомлении нет id платежа")

// PaymentConfirmer подтверждает платеж по его id
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, chargeID string) error
}

// Recorder принимает метрики по уведомлениям
type Recorder interface {
	RecordWebhook(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhook(string) {}

// MercadoPagoWebhookHandler обрабатывает уведомления Mercado Pago о платежах
type MercadoPagoWebhookHandler struct {
	confirmer PaymentConfirmer
	logger    *zap.Logger
	secretKey string
	metrics   Recorder
}

// NewMercadoPagoWebhookHandler создает новый обработчик webhook'ов
func NewMercadoPagoWebhookHandler(confirmer PaymentConfirmer, secretKey string, logger *zap.Logger, metrics Recorder) *MercadoPagoWebhookHandler {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &MercadoPagoWebhookHandler{
		confirmer: confirmer,
		logger:    logger,
		secretKey: secretKey,
		metrics:   metrics,
	}
}

// Notification: уведомление Mercado Pago. data.id приходит строкой или числом.
type Notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ServeHTTP обрабатывает входящий webhook
func (h *MercadoPagoWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.logger.Warn("неверный метод webhook запроса", zap.String("method", r.Method))
		h.metrics.RecordWebhook("method_not_allowed")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("ошибка чтения тела запроса", zap.Error(err))
		h.metrics.RecordWebhook("error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	notificationType, chargeID, err := parseNotification(r, body)
	if err != nil {
		h.logger.Error("ошибка парсинга webhook'а",
			zap.Error(err),
			zap.Int("body_length", len(body)))
		h.metrics.RecordWebhook("malformed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if notificationType != "payment" {
		h.logger.Info("уведомление не о платеже, пропускаем", zap.String("type", notificationType))
		h.metrics.RecordWebhook("ignored")
		writeOK(w)
		return
	}

	if !h.verifySignature(r.Header.Get("x-signature"), r.Header.Get("x-request-id"), chargeID) {
		h.logger.Warn("неверная подпись webhook'а", zap.String("payment_id", chargeID))
		h.metrics.RecordWebhook("unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.logger.Info("получено уведомление о платеже", zap.String("payment_id", chargeID))

	if err := h.confirmer.ConfirmPayment(r.Context(), chargeID); err != nil {
		h.logger.Error("ошибка обработки платежа",
			zap.String("payment_id", chargeID),
			zap.Error(err))
		h.metrics.RecordWebhook("error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordWebhook("ok")
	writeOK(w)
}

// parseNotification достает тип и id платежа из тела или из query параметров
func parseNotification(r *http.Request, body []byte) (string, string, error) {
	query := r.URL.Query()
	notificationType := query.Get("type")
	if notificationType == "" {
		notificationType = query.Get("topic")
	}
	chargeID := query.Get("data.id")
	if chargeID == "" {
		chargeID = query.Get("id")
	}

	if len(strings.TrimSpace(string(body))) > 0 {
		var n Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return "", "", fmt.Errorf("некорректный JSON: %w", err)
		}
		if n.Type != "" {
			notificationType = n.Type
		}
		if len(n.Data.ID) > 0 {
			id, err := rawID(n.Data.ID)
			if err != nil {
				return "", "", err
			}
			if id != "" {
				chargeID = id
			}
		}
	}

	if notificationType == "" {
		return "", "", errors.New("в уведомлении нет типа")
	}
	if notificationType == "payment" && chargeID == "" {
		return "", "", errMissingID
	}

	return notificationType, chargeID, nil
}

func rawID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("некорректный data.id: %s", string(raw))
}

// verifySignature проверяет заголовок x-signature (ts=...,v1=...).
// Без секрета проверка отключена.
func (h *MercadoPagoWebhookHandler) verifySignature(header, requestID, chargeID string) bool {
	if h.secretKey == "" {
		return true
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	expected := Sign(h.secretKey, chargeID, requestID, ts)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

// Sign считает подпись уведомления в формате Mercado Pago
func Sign(secret, chargeID, requestID, ts string) string {
	var manifest strings.Builder
	manifest.WriteString("id:" + strings.ToLower(chargeID) + ";")
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
