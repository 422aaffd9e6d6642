package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/enkapcm/payment-service/internal/models"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

// TransactionRepository is the GORM-backed store for payment
// transactions and webhook audit events. It satisfies the repository
// interfaces consumed by the reconciliation engine and the handlers.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a repository on the given connection
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new payment transaction. The unique index on
// merchant_reference rejects duplicate references here, at creation
// time, rather than during reconciliation.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindByReference looks up a transaction by exact merchant reference
func (r *TransactionRepository) FindByReference(ctx context.Context, merchantReference string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("merchant_reference = ?", merchantReference).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, enkap.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// Save persists the full transaction record
func (r *TransactionRepository) Save(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// FindStalePending returns transactions still pending after the given
// age, for the status sweep job.
func (r *TransactionRepository) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	cutoff := time.Now().Add(-olderThan)
	err := r.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", models.StatePending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// RecordWebhookEvent stores an audit row for a received webhook
func (r *TransactionRepository) RecordWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// MarkWebhookProcessed flags a webhook event as handled, recording the
// processing error if there was one.
func (r *TransactionRepository) MarkWebhookProcessed(ctx context.Context, id uuid.UUID, procErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": &now,
	}
	if procErr != nil {
		updates["error"] = procErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
