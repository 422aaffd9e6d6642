package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/models"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

// PaymentHandler handles payment initiation and status lookups
type PaymentHandler struct {
	store   TransactionStore
	gateway Gateway
	baseURL string
	log     *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(store TransactionStore, gateway Gateway, baseURL string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		store:   store,
		gateway: gateway,
		baseURL: baseURL,
		log:     log,
	}
}

// InitiatePaymentRequest is the payload for starting a payment
type InitiatePaymentRequest struct {
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Currency      string  `json:"currency" binding:"required,len=3"`
	CustomerEmail string  `json:"customer_email" binding:"omitempty,email"`
	CustomerName  string  `json:"customer_name"`
	Description   string  `json:"description"`
}

// InitiatePayment creates a local transaction, registers the callback
// URL with enKap and asks the provider for a hosted payment page. The
// merchant reference is generated here, exactly once, and never changes.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment request"})
		return
	}

	ctx := c.Request.Context()

	tx := &models.PaymentTransaction{
		ID:                uuid.New(),
		MerchantReference: uuid.New().String(),
		State:             models.StatePending,
		Amount:            req.Amount,
		Currency:          strings.ToUpper(req.Currency),
		CustomerEmail:     req.CustomerEmail,
		CustomerName:      req.CustomerName,
		Description:       req.Description,
	}

	if err := h.store.Create(ctx, tx); err != nil {
		h.log.Error("failed to create payment transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create transaction"})
		return
	}

	callbackURL := fmt.Sprintf("%s/payment/enkap/callback/%s", h.baseURL, tx.MerchantReference)
	returnURL := fmt.Sprintf("%s/payment/enkap/return/%s", h.baseURL, tx.MerchantReference)

	// Registration failure is logged by the client and must not block
	// the checkout; enKap can still deliver to a previously registered URL
	h.gateway.RegisterCallbackURL(ctx, callbackURL)

	order, err := h.gateway.CreatePaymentRequest(ctx, tx, callbackURL, returnURL)
	if err != nil {
		h.log.Error("payment creation failed",
			zap.String("merchant_reference", tx.MerchantReference),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Communication with enKap failed, please try again"})
		return
	}

	tx.PaymentID = order.PaymentID
	if err := h.store.Save(ctx, tx); err != nil {
		h.log.Error("failed to store provider payment id",
			zap.String("merchant_reference", tx.MerchantReference),
			zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"merchant_reference": tx.MerchantReference,
		"payment_id":         tx.PaymentID,
		"payment_url":        order.PaymentURL,
		"state":              tx.State,
	})
}

// GetPayment returns a transaction for storefront status polling
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	tx, err := h.store.FindByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		if errors.Is(err, enkap.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		h.log.Error("payment lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, tx)
}
