package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConfirmer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeConfirmer) ConfirmPayment(_ context.Context, chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, chargeID)
	return f.err
}

func serve(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_PaymentStringID(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodPost, "/webhook", `{"type":"payment","action":"payment.updated","data":{"id":"123"}}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"123"}, c.ids)
}

func TestWebhook_PaymentNumericID(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodPost, "/webhook", `{"type":"payment","data":{"id":98765432101}}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"98765432101"}, c.ids)
}

func TestWebhook_QueryParameters(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodPost, "/webhook?type=payment&data.id=555", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"555"}, c.ids)
}

func TestWebhook_NonPaymentIgnored(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodPost, "/webhook", `{"type":"merchant_order","data":{"id":"1"}}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, c.ids)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodGet, "/webhook", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, c.ids)
}

func TestWebhook_Malformed(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	for _, body := range []string{`{not json`, `{"type":"payment","data":{}}`, `{"type":"payment","data":{"id":true}}`, ``} {
		rec := serve(h, http.MethodPost, "/webhook", body, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, body)
	}
	assert.Empty(t, c.ids)
}

func TestWebhook_ConfirmFailure(t *testing.T) {
	c := &fakeConfirmer{err: errors.New("lookup failed")}
	h := NewMercadoPagoWebhookHandler(c, "", zap.NewNop(), nil)

	rec := serve(h, http.MethodPost, "/webhook", `{"type":"payment","data":{"id":"123"}}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_Signature(t *testing.T) {
	c := &fakeConfirmer{}
	h := NewMercadoPagoWebhookHandler(c, "segredo", zap.NewNop(), nil)
	body := `{"type":"payment","data":{"id":"123"}}`

	sig := Sign("segredo", "123", "req-1", "1700000000")
	rec := serve(h, http.MethodPost, "/webhook", body, map[string]string{
		"x-signature":  "ts=1700000000,v1=" + sig,
		"x-request-id": "req-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodPost, "/webhook", body, map[string]string{
		"x-signature":  "ts=1700000000,v1=deadbeef",
		"x-request-id": "req-1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodPost, "/webhook", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, []string{"123"}, c.ids)
}
