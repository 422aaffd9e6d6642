package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/models"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

// StalePendingStore lists transactions that never left pending
type StalePendingStore interface {
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentTransaction, error)
}

// StatusGateway asks the provider for the current order status
type StatusGateway interface {
	GetOrderStatus(ctx context.Context, merchantReference string) (*enkap.CanonicalNotification, error)
}

// StatusSweepJob is an operational backstop for lost notifications: it
// polls the provider for transactions stuck in pending and feeds the
// answers through the regular reconciliation path. It does not retry
// notification deliveries; that stays the provider's responsibility.
type StatusSweepJob struct {
	store     StalePendingStore
	gateway   StatusGateway
	engine    *enkap.Engine
	log       *zap.Logger
	olderThan time.Duration
	batchSize int
}

// NewStatusSweepJob creates the sweep job
func NewStatusSweepJob(store StalePendingStore, gateway StatusGateway, engine *enkap.Engine, log *zap.Logger) *StatusSweepJob {
	return &StatusSweepJob{
		store:     store,
		gateway:   gateway,
		engine:    engine,
		log:       log,
		olderThan: 15 * time.Minute,
		batchSize: 50,
	}
}

// Register schedules the job on the given scheduler
func (j *StatusSweepJob) Register(scheduler *gocron.Scheduler, intervalMinutes int) error {
	_, err := scheduler.Every(intervalMinutes).Minutes().Do(j.Run)
	return err
}

// Run performs one sweep
func (j *StatusSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	txs, err := j.store.FindStalePending(ctx, j.olderThan, j.batchSize)
	if err != nil {
		j.log.Error("status sweep: listing stale pending transactions failed", zap.Error(err))
		return
	}

	for _, tx := range txs {
		n, err := j.gateway.GetOrderStatus(ctx, tx.MerchantReference)
		if err != nil {
			j.log.Warn("status sweep: order status fetch failed",
				zap.String("merchant_reference", tx.MerchantReference),
				zap.Error(err))
			continue
		}
		if _, err := j.engine.Reconcile(ctx, *n); err != nil {
			j.log.Warn("status sweep: reconciliation failed",
				zap.String("merchant_reference", tx.MerchantReference),
				zap.Error(err))
		}
	}

	if len(txs) > 0 {
		j.log.Info("status sweep completed", zap.Int("checked", len(txs)))
	}
}
