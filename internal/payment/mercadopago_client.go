package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carro-de-som/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBaseURL адрес API Mercado Pago
const DefaultBaseURL = "https://api.mercadopago.com"

// Статусы платежа Mercado Pago
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
)

var (
	// ErrLookupFailed возвращается, если не удалось получить платеж
	ErrLookupFailed = errors.New("ошибка получения платежа")
	// ErrInvalidChargeID: ID платежа не число, запрос к API не отправляется
	ErrInvalidChargeID = errors.New("некорректный ID платежа")
)

// MercadoPagoClient представляет клиент для работы с Mercado Pago API (PIX)
type MercadoPagoClient struct {
	accessToken string
	payerEmail  string
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
}

// PaymentRequest представляет запрос на создание платежа
type PaymentRequest struct {
	TransactionAmount float64           `json:"transaction_amount"`
	Description       string            `json:"description"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             Payer             `json:"payer"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Payer представляет плательщика
type Payer struct {
	Email string `json:"email"`
}

// PaymentResponse представляет ответ от Mercado Pago
type PaymentResponse struct {
	ID                 json.Number    `json:"id"`
	Status             string         `json:"status"`
	StatusDetail       string         `json:"status_detail"`
	TransactionAmount  float64        `json:"transaction_amount"`
	Description        string         `json:"description"`
	Metadata           map[string]any `json:"metadata"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// NewMercadoPagoClient создает новый клиент Mercado Pago
func NewMercadoPagoClient(accessToken, payerEmail, baseURL string, logger *zap.Logger) *MercadoPagoClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &MercadoPagoClient{
		accessToken: accessToken,
		payerEmail:  payerEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// CreateCharge создает PIX платеж и возвращает код "copia e cola" и QR код
func (c *MercadoPagoClient) CreateCharge(ctx context.Context, amount float64, description string, metadata map[string]string) (*models.Charge, error) {
	paymentReq := PaymentRequest{
		TransactionAmount: amount,
		Description:       description,
		PaymentMethodID:   "pix",
		Payer:             Payer{Email: c.payerEmail},
		Metadata:          metadata,
	}

	reqBody, err := json.Marshal(paymentReq)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	paymentResp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	charge := &models.Charge{
		ID:          paymentResp.ID.String(),
		Status:      paymentResp.Status,
		DisplayCode: paymentResp.PointOfInteraction.TransactionData.QRCode,
		Metadata:    flattenMetadata(paymentResp.Metadata),
	}

	if encoded := paymentResp.PointOfInteraction.TransactionData.QRCodeBase64; encoded != "" {
		qr, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			c.logger.Warn("ошибка декодирования QR кода", zap.String("payment_id", charge.ID), zap.Error(err))
		} else {
			charge.QRImage = qr
		}
	}

	c.logger.Info("платеж создан в Mercado Pago",
		zap.String("payment_id", charge.ID),
		zap.Float64("amount", amount),
		zap.String("status", charge.Status))

	return charge, nil
}

// LookupCharge получает статус и метаданные платежа
func (c *MercadoPagoClient) LookupCharge(ctx context.Context, chargeID string) (*models.Charge, error) {
	if _, err := strconv.ParseInt(chargeID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChargeID, chargeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+chargeID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	paymentResp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	c.logger.Info("статус платежа получен",
		zap.String("payment_id", chargeID),
		zap.String("status", paymentResp.Status))

	return &models.Charge{
		ID:       paymentResp.ID.String(),
		Status:   paymentResp.Status,
		Metadata: flattenMetadata(paymentResp.Metadata),
	}, nil
}

// do отправляет запрос и разбирает ответ платежа
func (c *MercadoPagoClient) do(req *http.Request) (*PaymentResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("неожиданный статус ответа: %d, тело: %s", resp.StatusCode, body)
	}

	var paymentResp PaymentResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&paymentResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	return &paymentResp, nil
}

// flattenMetadata приводит метаданные к строкам: Mercado Pago может вернуть числа
func flattenMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
