package enkap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/models"
)

// TransactionRepository is the narrow persistence surface the engine
// needs. The production implementation lives in internal/database; tests
// use an in-memory fake.
type TransactionRepository interface {
	FindByReference(ctx context.Context, merchantReference string) (*models.PaymentTransaction, error)
	Save(ctx context.Context, tx *models.PaymentTransaction) error
}

// ReferenceLocker serializes reconciliation per merchant reference so
// concurrent notifications for the same transaction cannot interleave
// the read-modify-write.
type ReferenceLocker interface {
	Lock(ctx context.Context, merchantReference string) (unlock func(), err error)
}

// Default failure messages used when the provider sends no status detail
const (
	defaultFailedMessage    = "Payment failed"
	defaultCancelledMessage = "Payment cancelled"
)

// statusToState maps enKap payment statuses onto transaction states.
// Kept as an explicit table so the transition policy stays auditable.
var statusToState = map[string]models.TransactionState{
	"CREATED":     models.StatePending,
	"INITIALISED": models.StatePending,
	"IN_PROGRESS": models.StatePending,
	"CONFIRMED":   models.StateDone,
	"FAILED":      models.StateError,
	"CANCELED":    models.StateCancel,
	"CANCELLED":   models.StateCancel,
}

// MapStatus resolves a provider status string (case-insensitive) to a
// transaction state. Unknown statuses map to pending: intermediate
// statuses the provider adds later must not abort processing.
func MapStatus(status string) models.TransactionState {
	if state, ok := statusToState[strings.ToUpper(status)]; ok {
		return state
	}
	return models.StatePending
}

// Result describes the outcome of reconciling one notification
type Result struct {
	Transaction *models.PaymentTransaction
	State       models.TransactionState
	// Ignored is true when the notification mapped to a different state
	// than the terminal state the transaction already reached. The
	// descriptive fields were still refreshed, the state was not.
	Ignored bool
}

// Engine resolves notifications against local transactions and drives
// the transaction state machine.
type Engine struct {
	repo   TransactionRepository
	locker ReferenceLocker
	log    *zap.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(repo TransactionRepository, locker ReferenceLocker, log *zap.Logger) *Engine {
	return &Engine{repo: repo, locker: locker, log: log}
}

// Reconcile looks up the transaction for the notification's merchant
// reference and applies the status transition. Safe to call repeatedly
// for the same reference: re-applying the reached terminal status is a
// no-op success, and a notification that would move a terminal
// transaction to a different state is ignored rather than applied.
func (e *Engine) Reconcile(ctx context.Context, n CanonicalNotification) (*Result, error) {
	if n.MerchantReference == "" {
		return nil, ErrMissingReference
	}

	unlock, err := e.locker.Lock(ctx, n.MerchantReference)
	if err != nil {
		return nil, fmt.Errorf("acquiring reconcile lock for %s: %w", n.MerchantReference, err)
	}
	defer unlock()

	tx, err := e.repo.FindByReference(ctx, n.MerchantReference)
	if err != nil {
		e.log.Error("transaction lookup failed",
			zap.String("merchant_reference", n.MerchantReference),
			zap.Error(err))
		return nil, err
	}

	target := MapStatus(n.Status)

	// Descriptive fields are refreshed regardless of the state outcome
	tx.StatusDetails = n.StatusMessage
	if n.PaymentID != "" {
		tx.PaymentID = n.PaymentID
	}
	if n.PhoneNumber != "" {
		tx.PhoneNumber = n.PhoneNumber
	}
	if n.PaymentMethod != "" {
		tx.PaymentMethod = models.ParsePaymentMethod(n.PaymentMethod)
	}

	ignored := false
	switch {
	case tx.State.IsTerminal() && target != tx.State:
		// A late notification must not regress a settled transaction
		ignored = true
		e.log.Warn("ignoring state transition out of terminal state",
			zap.String("merchant_reference", tx.MerchantReference),
			zap.String("current_state", string(tx.State)),
			zap.String("notified_status", n.Status))
	case target == models.StateDone:
		tx.State = models.StateDone
	case target == models.StateError:
		tx.State = models.StateError
		if tx.StatusDetails == "" {
			tx.StatusDetails = defaultFailedMessage
		}
	case target == models.StateCancel:
		tx.State = models.StateCancel
		if tx.StatusDetails == "" {
			tx.StatusDetails = defaultCancelledMessage
		}
	default:
		tx.State = models.StatePending
	}

	if err := e.repo.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("saving transaction %s: %w", tx.MerchantReference, err)
	}

	e.log.Info("notification reconciled",
		zap.String("merchant_reference", tx.MerchantReference),
		zap.String("status", n.Status),
		zap.String("state", string(tx.State)),
		zap.String("payment_id", tx.PaymentID),
		zap.Bool("ignored", ignored))

	return &Result{Transaction: tx, State: tx.State, Ignored: ignored}, nil
}
