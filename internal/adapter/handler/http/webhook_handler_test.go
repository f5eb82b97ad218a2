package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/infrastructure/crypto"
)

// MockTransactionApplier is a mock implementation of TransactionApplier
type MockTransactionApplier struct {
	mock.Mock
}

func (m *MockTransactionApplier) ApplyWebhookEvent(ctx context.Context, dedupKey, transactionID, reportedStatus string, amountCents int64) (bool, error) {
	args := m.Called(ctx, dedupKey, transactionID, reportedStatus, amountCents)
	return args.Bool(0), args.Error(1)
}

var webhookTestSecret = []byte("test-webhook-secret")

func webhookNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newWebhookVerifier() *crypto.SignatureVerifier {
	return crypto.NewSignatureVerifier(webhookTestSecret,
		crypto.WithClock(webhookNow))
}

// signedWebhookRequest builds a POST /webhook request with a valid signature
// over body and the given timestamp header.
func signedWebhookRequest(t *testing.T, body string, timestamp time.Time) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("x-signature", crypto.Sign(webhookTestSecret, []byte(body)))
	req.Header.Set("x-timestamp", fmt.Sprintf("%d", timestamp.Unix()))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var parsed map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return parsed
}

func TestWebhookHandler_HandleWebhook(t *testing.T) {
	logger := zap.NewNop()
	body := `{"transaction_id":"tx-1","status":"confirmed","amount":15000,"webhook_id":"evt-1"}`

	t.Run("valid delivery is applied and acknowledged", func(t *testing.T) {
		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, "wh:evt-1", "tx-1", "confirmed", int64(15000)).
			Return(true, nil)

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, body, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody(t, rec)
		assert.Equal(t, true, resp["received"])
		assert.Equal(t, true, resp["applied"])
		service.AssertExpectations(t)
	})

	t.Run("idempotent no-op still returns 200", func(t *testing.T) {
		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, "wh:evt-1", "tx-1", "confirmed", int64(15000)).
			Return(false, nil)

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, body, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody(t, rec)
		assert.Equal(t, true, resp["received"])
		assert.Equal(t, false, resp["applied"])
	})

	t.Run("invalid signature is rejected with 401", func(t *testing.T) {
		service := new(MockTransactionApplier)
		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)

		c, rec := signedWebhookRequest(t, body, webhookNow())
		c.Request().Header.Set("x-signature", crypto.Sign([]byte("wrong-secret"), []byte(body)))

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_SIGNATURE", decodeBody(t, rec)["code"])
		service.AssertNotCalled(t, "ApplyWebhookEvent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tampered body is rejected with 401", func(t *testing.T) {
		service := new(MockTransactionApplier)
		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)

		tampered := strings.Replace(body, "15000", "15001", 1)
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tampered))
		req.Header.Set("x-signature", crypto.Sign(webhookTestSecret, []byte(body)))
		req.Header.Set("x-timestamp", fmt.Sprintf("%d", webhookNow().Unix()))
		rec := httptest.NewRecorder()

		assert.NoError(t, handler.HandleWebhook(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp is rejected with 408", func(t *testing.T) {
		service := new(MockTransactionApplier)
		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)

		c, rec := signedWebhookRequest(t, body, webhookNow().Add(-10*time.Minute))

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusRequestTimeout, rec.Code)
		assert.Equal(t, "STALE_TIMESTAMP", decodeBody(t, rec)["code"])
		service.AssertNotCalled(t, "ApplyWebhookEvent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed payload is rejected with 400", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"not json", `{"transaction_id": `},
			{"missing transaction id", `{"status":"confirmed","amount":15000}`},
			{"unknown status", `{"transaction_id":"tx-1","status":"settled","amount":15000}`},
			{"non-positive amount", `{"transaction_id":"tx-1","status":"confirmed","amount":0}`},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				service := new(MockTransactionApplier)
				handler := NewWebhookHandler(logger, newWebhookVerifier(), service)

				c, rec := signedWebhookRequest(t, tc.body, webhookNow())

				assert.NoError(t, handler.HandleWebhook(c))
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, "INVALID_PAYLOAD", decodeBody(t, rec)["code"])
				service.AssertNotCalled(t, "ApplyWebhookEvent",
					mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("camel case transaction id is accepted", func(t *testing.T) {
		camel := `{"transactionId":"tx-1","status":"confirmed","amount":15000,"webhook_id":"evt-2"}`

		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, "wh:evt-2", "tx-1", "confirmed", int64(15000)).
			Return(true, nil)

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, camel, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("amount mismatch maps to 400", func(t *testing.T) {
		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, mock.Anything, "tx-1", "confirmed", int64(15000)).
			Return(false, errs.NewAmountMismatchError("tx-1", 20000, 15000))

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, body, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "AMOUNT_MISMATCH", decodeBody(t, rec)["code"])
	})

	t.Run("unknown transaction maps to 404", func(t *testing.T) {
		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, mock.Anything, "tx-1", "confirmed", int64(15000)).
			Return(false, errs.ErrTransactionNotFound)

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, body, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "UNKNOWN_TRANSACTION", decodeBody(t, rec)["code"])
	})

	t.Run("store outage maps to 503", func(t *testing.T) {
		service := new(MockTransactionApplier)
		service.On("ApplyWebhookEvent", mock.Anything, mock.Anything, "tx-1", "confirmed", int64(15000)).
			Return(false, fmt.Errorf("%w: connection refused", errs.ErrStoreUnavailable))

		handler := NewWebhookHandler(logger, newWebhookVerifier(), service)
		c, rec := signedWebhookRequest(t, body, webhookNow())

		assert.NoError(t, handler.HandleWebhook(c))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "STORE_UNAVAILABLE", decodeBody(t, rec)["code"])
	})
}

func TestWebhookHandler_DedupKey(t *testing.T) {
	logger := zap.NewNop()
	handler := NewWebhookHandler(logger, newWebhookVerifier(), new(MockTransactionApplier))

	t.Run("processor webhook id wins when present", func(t *testing.T) {
		payload := &WebhookPayload{TransactionID: "tx-1", Status: "confirmed", Amount: 100, WebhookID: "evt-9"}
		assert.Equal(t, "wh:evt-9", handler.dedupKey(payload, "1767700000"))
	})

	t.Run("derived key is stable within a tolerance bucket", func(t *testing.T) {
		payload := &WebhookPayload{TransactionID: "tx-1", Status: "confirmed", Amount: 100}

		base := int64(1767700000)
		key1 := handler.dedupKey(payload, fmt.Sprintf("%d", base))
		key2 := handler.dedupKey(payload, fmt.Sprintf("%d", base+1))
		assert.Equal(t, key1, key2)

		// A resend a full tolerance window later gets a fresh key.
		window := int64(handler.verifier.Tolerance().Seconds())
		key3 := handler.dedupKey(payload, fmt.Sprintf("%d", base+window))
		assert.NotEqual(t, key1, key3)
	})

	t.Run("derived key distinguishes event fields", func(t *testing.T) {
		ts := "1767700000"
		a := handler.dedupKey(&WebhookPayload{TransactionID: "tx-1", Status: "confirmed", Amount: 100}, ts)
		b := handler.dedupKey(&WebhookPayload{TransactionID: "tx-1", Status: "failed", Amount: 100}, ts)
		c := handler.dedupKey(&WebhookPayload{TransactionID: "tx-2", Status: "confirmed", Amount: 100}, ts)
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})
}
