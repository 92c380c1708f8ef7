package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateCharge(t *testing.T) {
	qr := []byte{0x89, 'P', 'N', 'G'}

	var got PaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": 1234567890,
			"status": "pending",
			"metadata": {"user_id": "42", "order_id": "o-1", "text": "Olá"},
			"point_of_interaction": {"transaction_data": {
				"qr_code": "00020126-pix-code",
				"qr_code_base64": "` + base64.StdEncoding.EncodeToString(qr) + `"
			}}
		}`))
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("token-123", "comprador@exemplo.com", srv.URL, zap.NewNop())
	charge, err := client.CreateCharge(context.Background(), 5, "Locução", map[string]string{"user_id": "42", "order_id": "o-1", "text": "Olá"})
	require.NoError(t, err)

	assert.Equal(t, "1234567890", charge.ID)
	assert.Equal(t, "pending", charge.Status)
	assert.Equal(t, "00020126-pix-code", charge.DisplayCode)
	assert.Equal(t, qr, charge.QRImage)
	assert.Equal(t, "42", charge.Metadata["user_id"])

	assert.Equal(t, "pix", got.PaymentMethodID)
	assert.Equal(t, 5.0, got.TransactionAmount)
	assert.Equal(t, "comprador@exemplo.com", got.Payer.Email)
	assert.Equal(t, "o-1", got.Metadata["order_id"])
}

func TestCreateCharge_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("t", "e", srv.URL, zap.NewNop())
	_, err := client.CreateCharge(context.Background(), 5, "x", nil)
	assert.Error(t, err)
}

func TestLookupCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/555", r.URL.Path)
		w.Write([]byte(`{"id": 555, "status": "approved", "metadata": {"user_id": 42, "text": "Olá", "order_id": "o-1"}}`))
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("t", "e", srv.URL, zap.NewNop())
	charge, err := client.LookupCharge(context.Background(), "555")
	require.NoError(t, err)

	assert.Equal(t, "555", charge.ID)
	assert.Equal(t, StatusApproved, charge.Status)
	assert.Equal(t, "42", charge.Metadata["user_id"])
	assert.Equal(t, "Olá", charge.Metadata["text"])
}

func TestLookupCharge_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("t", "e", srv.URL, zap.NewNop())

	_, err := client.LookupCharge(context.Background(), "999")
	assert.ErrorIs(t, err, ErrLookupFailed)

	_, err = client.LookupCharge(context.Background(), "../admin")
	assert.ErrorIs(t, err, ErrInvalidChargeID)
	assert.NotErrorIs(t, err, ErrLookupFailed)
}
