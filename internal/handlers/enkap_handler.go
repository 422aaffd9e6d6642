package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/enkapcm/payment-service/internal/models"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

// TransactionStore is the persistence surface the payment handlers need
type TransactionStore interface {
	enkap.TransactionRepository
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	RecordWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	MarkWebhookProcessed(ctx context.Context, id uuid.UUID, procErr error) error
}

// Gateway is the provider client surface the handlers need
type Gateway interface {
	AcquireAccessToken(ctx context.Context) (*oauth2.Token, error)
	RegisterCallbackURL(ctx context.Context, callbackURL string) bool
	CreatePaymentRequest(ctx context.Context, tx *models.PaymentTransaction, callbackURL, returnURL string) (*enkap.PaymentOrder, error)
	Ping(ctx context.Context) error
}

// EnkapHandler exposes the three notification entry points plus the
// admin connectivity check. The handlers are thin adapters: parse the
// request, normalize, verify (webhook only), reconcile, translate the
// result into a redirect or a JSON reply.
type EnkapHandler struct {
	engine      *enkap.Engine
	verifier    *enkap.SignatureVerifier
	gateway     Gateway
	store       TransactionStore
	frontendURL string
	log         *zap.Logger
}

// NewEnkapHandler creates a new notification handler
func NewEnkapHandler(engine *enkap.Engine, verifier *enkap.SignatureVerifier, gateway Gateway, store TransactionStore, frontendURL string, log *zap.Logger) *EnkapHandler {
	return &EnkapHandler{
		engine:      engine,
		verifier:    verifier,
		gateway:     gateway,
		store:       store,
		frontendURL: frontendURL,
		log:         log,
	}
}

// redirectFor picks the customer-facing page for a transaction state
func (h *EnkapHandler) redirectFor(state models.TransactionState) string {
	switch state {
	case models.StateCancel:
		return h.frontendURL + "/shop/cart?payment_cancelled=1"
	case models.StateError:
		return h.frontendURL + "/shop/cart?payment_error=1"
	default:
		// done and pending both land on the status page
		return h.frontendURL + "/payment/status"
	}
}

func (h *EnkapHandler) errorRedirect() string {
	return h.frontendURL + "/shop/cart?payment_error=1"
}

// recoverToRedirect keeps unexpected faults away from the provider and
// the browser: the redirect channels must answer with a redirect even on
// internal error.
func (h *EnkapHandler) recoverToRedirect(c *gin.Context) {
	if r := recover(); r != nil {
		h.log.Error("panic while handling notification", zap.Any("panic", r))
		c.Redirect(http.StatusFound, h.errorRedirect())
	}
}

// Callback handles server-to-server payment callbacks from enKap.
// Accepts query and/or form fields and always answers with a redirect.
func (h *EnkapHandler) Callback(c *gin.Context) {
	defer h.recoverToRedirect(c)

	reference := c.Param("reference")
	h.log.Info("enKap callback received", zap.String("merchant_reference", reference))

	if err := c.Request.ParseForm(); err != nil {
		h.log.Warn("failed to parse callback form", zap.Error(err))
	}
	n := enkap.NotificationFromCallback(reference, c.Request.URL.Query(), c.Request.PostForm)

	result, err := h.engine.Reconcile(c.Request.Context(), *n)
	if err != nil {
		if errors.Is(err, enkap.ErrTransactionNotFound) {
			c.Redirect(http.StatusFound, h.frontendURL+"/shop/cart")
			return
		}
		h.log.Error("callback reconciliation failed",
			zap.String("merchant_reference", reference),
			zap.Error(err))
		c.Redirect(http.StatusFound, h.errorRedirect())
		return
	}

	c.Redirect(http.StatusFound, h.redirectFor(result.State))
}

// Return handles the customer's browser returning from the enKap
// payment page. The query parameters may carry a status notification;
// when they do not, the redirect is chosen purely from the recorded
// transaction state.
func (h *EnkapHandler) Return(c *gin.Context) {
	defer h.recoverToRedirect(c)

	reference := c.Param("reference")
	h.log.Info("enKap return received", zap.String("merchant_reference", reference))

	ctx := c.Request.Context()
	if n := enkap.NotificationFromReturn(reference, c.Request.URL.Query()); n != nil {
		if _, err := h.engine.Reconcile(ctx, *n); err != nil {
			if errors.Is(err, enkap.ErrTransactionNotFound) {
				c.Redirect(http.StatusFound, h.frontendURL+"/shop/cart")
				return
			}
			h.log.Error("return reconciliation failed",
				zap.String("merchant_reference", reference),
				zap.Error(err))
			c.Redirect(http.StatusFound, h.errorRedirect())
			return
		}
	}

	tx, err := h.store.FindByReference(ctx, reference)
	if err != nil {
		h.log.Error("no transaction for return redirect",
			zap.String("merchant_reference", reference),
			zap.Error(err))
		c.Redirect(http.StatusFound, h.frontendURL+"/shop/cart")
		return
	}

	c.Redirect(http.StatusFound, h.redirectFor(tx.State))
}

// Webhook handles asynchronous status notifications from enKap.
//
// Every processed outcome answers HTTP 200 with {status, message}, so
// the provider does not retry deliveries we have definitively handled
// (including rejections); only an unreadable request body gets a 400.
func (h *EnkapHandler) Webhook(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic while handling webhook", zap.Any("panic", r))
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Internal error"})
		}
	}()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Unreadable request body"})
		return
	}

	ctx := c.Request.Context()
	event := h.recordWebhookEvent(ctx, body)

	n, err := enkap.NotificationFromWebhook(body, c.GetHeader(enkap.SignatureHeader))
	if err != nil {
		h.log.Error("webhook rejected", zap.Error(err))
		h.finishWebhookEvent(ctx, event, err)
		message := "Invalid payload"
		if errors.Is(err, enkap.ErrMissingReference) {
			message = "Missing merchant reference"
		}
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": message})
		return
	}

	if !h.verifier.Verify(n.RawBody, n.RawSignature) {
		h.log.Error("webhook signature verification failed",
			zap.String("merchant_reference", n.MerchantReference))
		h.finishWebhookEvent(ctx, event, enkap.ErrInvalidSignature)
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Invalid signature"})
		return
	}

	_, err = h.engine.Reconcile(ctx, *n)
	h.finishWebhookEvent(ctx, event, err)
	if err != nil {
		if errors.Is(err, enkap.ErrTransactionNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Transaction not found"})
			return
		}
		h.log.Error("webhook reconciliation failed",
			zap.String("merchant_reference", n.MerchantReference),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Webhook processed successfully"})
}

// TestConnection verifies API connectivity for operators (admin only)
func (h *EnkapHandler) TestConnection(c *gin.Context) {
	ctx := c.Request.Context()

	if _, err := h.gateway.AcquireAccessToken(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "Failed to connect to enKap API"})
		return
	}
	if err := h.gateway.Ping(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "enKap API ping failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "enKap API connection successful"})
}

// recordWebhookEvent stores the audit row for a received webhook.
// Auditing is best effort and never blocks processing.
func (h *EnkapHandler) recordWebhookEvent(ctx context.Context, body []byte) *models.WebhookEvent {
	var raw models.JSON
	_ = json.Unmarshal(body, &raw)
	reference, _ := raw["merchantReference"].(string)

	event := &models.WebhookEvent{
		ID:                uuid.New(),
		MerchantReference: reference,
		RawData:           raw,
	}
	if err := h.store.RecordWebhookEvent(ctx, event); err != nil {
		h.log.Warn("failed to record webhook event", zap.Error(err))
		return nil
	}
	return event
}

func (h *EnkapHandler) finishWebhookEvent(ctx context.Context, event *models.WebhookEvent, procErr error) {
	if event == nil {
		return
	}
	if err := h.store.MarkWebhookProcessed(ctx, event.ID, procErr); err != nil {
		h.log.Warn("failed to mark webhook event processed", zap.Error(err))
	}
}
