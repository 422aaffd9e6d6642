package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/models"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

const testBaseURL = "https://pay.example.com"

func newPaymentRouter(store *fakeStore, gateway Gateway) *gin.Engine {
	h := NewPaymentHandler(store, gateway, testBaseURL, zap.NewNop())

	router := gin.New()
	router.POST("/api/payments", h.InitiatePayment)
	router.GET("/api/payments/:reference", h.GetPayment)
	return router
}

func TestInitiatePayment(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{order: &enkap.PaymentOrder{
		PaymentID:  "pay_1",
		PaymentURL: "https://pay.enkap.cm/p/1",
	}}
	router := newPaymentRouter(store, gateway)

	body := `{"amount": 2500, "currency": "xaf", "customer_email": "jane@example.com", "description": "Order 42"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var reply map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	reference, _ := reply["merchant_reference"].(string)
	require.NotEmpty(t, reference)
	assert.Equal(t, "pay_1", reply["payment_id"])
	assert.Equal(t, "https://pay.enkap.cm/p/1", reply["payment_url"])
	assert.Equal(t, string(models.StatePending), reply["state"])

	tx := store.stored(reference)
	require.NotNil(t, tx)
	assert.Equal(t, "XAF", tx.Currency)
	assert.Equal(t, "pay_1", tx.PaymentID)

	// Callback URL is derived from the base URL and the generated reference
	require.Len(t, gateway.registerCalls, 1)
	assert.Equal(t, fmt.Sprintf("%s/payment/enkap/callback/%s", testBaseURL, reference), gateway.registerCalls[0])
}

func TestInitiatePaymentValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing amount", `{"currency": "XAF"}`},
		{"negative amount", `{"amount": -5, "currency": "XAF"}`},
		{"bad currency", `{"amount": 100, "currency": "FRANC"}`},
		{"bad email", `{"amount": 100, "currency": "XAF", "customer_email": "nope"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			router := newPaymentRouter(store, &fakeGateway{})

			req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, store.createCalls)
		})
	}
}

func TestInitiatePaymentProviderFailure(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{createErr: &enkap.CommunicationError{
		Endpoint: "/api/order/create",
		Cause:    fmt.Errorf("gateway timeout"),
	}}
	router := newPaymentRouter(store, gateway)

	body := `{"amount": 2500, "currency": "XAF"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	// The local transaction stays behind as pending for later retry
	assert.Equal(t, 1, store.createCalls)
}

func TestGetPayment(t *testing.T) {
	tx := pendingTx("abc-123")
	tx.State = models.StateDone
	store := newFakeStore(tx)
	router := newPaymentRouter(store, &fakeGateway{})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var reply models.PaymentTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "abc-123", reply.MerchantReference)
	assert.Equal(t, models.StateDone, reply.State)
}

func TestGetPaymentNotFound(t *testing.T) {
	router := newPaymentRouter(newFakeStore(), &fakeGateway{})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
