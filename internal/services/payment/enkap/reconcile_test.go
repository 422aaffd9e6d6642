package enkap

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/models"
)

// fakeRepo is an in-memory TransactionRepository that records writes
type fakeRepo struct {
	txs       map[string]*models.PaymentTransaction
	saveCalls int
}

func newFakeRepo(txs ...*models.PaymentTransaction) *fakeRepo {
	repo := &fakeRepo{txs: make(map[string]*models.PaymentTransaction)}
	for _, tx := range txs {
		repo.txs[tx.MerchantReference] = tx
	}
	return repo
}

func (f *fakeRepo) FindByReference(_ context.Context, reference string) (*models.PaymentTransaction, error) {
	tx, ok := f.txs[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

func (f *fakeRepo) Save(_ context.Context, tx *models.PaymentTransaction) error {
	f.saveCalls++
	f.txs[tx.MerchantReference] = tx
	return nil
}

func pendingTransaction(reference string) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:                uuid.New(),
		MerchantReference: reference,
		State:             models.StatePending,
		Amount:            1500,
		Currency:          "XAF",
	}
}

func newTestEngine(repo *fakeRepo) *Engine {
	return NewEngine(repo, NewLocalLocker(), zap.NewNop())
}

func TestMapStatus(t *testing.T) {
	cases := map[string]models.TransactionState{
		"CREATED":     models.StatePending,
		"INITIALISED": models.StatePending,
		"IN_PROGRESS": models.StatePending,
		"CONFIRMED":   models.StateDone,
		"FAILED":      models.StateError,
		"CANCELED":    models.StateCancel,
		"CANCELLED":   models.StateCancel,
		"confirmed":   models.StateDone,
		"XYZ":         models.StatePending,
		"":            models.StatePending,
	}

	for status, want := range cases {
		assert.Equal(t, want, MapStatus(status), "status %q", status)
	}
}

func TestReconcileAppliesMappedState(t *testing.T) {
	cases := []struct {
		status string
		want   models.TransactionState
	}{
		{"CREATED", models.StatePending},
		{"CONFIRMED", models.StateDone},
		{"FAILED", models.StateError},
		{"CANCELLED", models.StateCancel},
		{"IN_PROGRESS", models.StatePending},
		{"XYZ", models.StatePending},
	}

	for _, tc := range cases {
		repo := newFakeRepo(pendingTransaction("ref-1"))
		engine := newTestEngine(repo)

		result, err := engine.Reconcile(context.Background(), CanonicalNotification{
			MerchantReference: "ref-1",
			Status:            tc.status,
		})
		require.NoError(t, err, "status %q", tc.status)
		assert.Equal(t, tc.want, result.State, "status %q", tc.status)
		assert.Equal(t, tc.want, repo.txs["ref-1"].State, "status %q", tc.status)
	}
}

func TestReconcileIdempotentOnConfirmed(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	n := CanonicalNotification{
		MerchantReference: "ref-1",
		Status:            "CONFIRMED",
		PaymentID:         "pay_1",
	}

	first, err := engine.Reconcile(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, first.State)

	second, err := engine.Reconcile(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, second.State)
	assert.False(t, second.Ignored)
	assert.Equal(t, "pay_1", repo.txs["ref-1"].PaymentID)
}

func TestReconcileMissingReference(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	_, err := engine.Reconcile(context.Background(), CanonicalNotification{Status: "CONFIRMED"})
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.Zero(t, repo.saveCalls)
}

func TestReconcileUnknownReference(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(repo)

	_, err := engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "forged-ref",
		Status:            "CONFIRMED",
	})
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Zero(t, repo.saveCalls)
}

func TestReconcileIgnoresRegressionFromTerminalState(t *testing.T) {
	tx := pendingTransaction("ref-1")
	tx.State = models.StateDone
	repo := newFakeRepo(tx)
	engine := newTestEngine(repo)

	result, err := engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "ref-1",
		Status:            "IN_PROGRESS",
		StatusMessage:     "still processing",
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, models.StateDone, repo.txs["ref-1"].State)
	// Descriptive fields still refresh, only the state is protected
	assert.Equal(t, "still processing", repo.txs["ref-1"].StatusDetails)
}

func TestReconcileDefaultFailureMessages(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	_, err := engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "ref-1",
		Status:            "FAILED",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment failed", repo.txs["ref-1"].StatusDetails)

	repo = newFakeRepo(pendingTransaction("ref-2"))
	engine = newTestEngine(repo)

	_, err = engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "ref-2",
		Status:            "CANCELLED",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment cancelled", repo.txs["ref-2"].StatusDetails)
}

func TestReconcileUpdatesDescriptiveFields(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	_, err := engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "ref-1",
		Status:            "IN_PROGRESS",
		PaymentID:         "pay_1",
		PhoneNumber:       "237670000001",
		PaymentMethod:     "ORANGE_CM",
		StatusMessage:     "waiting for approval",
	})
	require.NoError(t, err)

	got := repo.txs["ref-1"]
	assert.Equal(t, "pay_1", got.PaymentID)
	assert.Equal(t, "237670000001", got.PhoneNumber)
	assert.Equal(t, models.MethodOrange, got.PaymentMethod)
	assert.Equal(t, "waiting for approval", got.StatusDetails)
}

func TestReconcileUnknownPaymentMethodDefaultsToMTN(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	_, err := engine.Reconcile(context.Background(), CanonicalNotification{
		MerchantReference: "ref-1",
		Status:            "CONFIRMED",
		PaymentMethod:     "SOMETHING_NEW",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MethodMTN, repo.txs["ref-1"].PaymentMethod)
}

func TestReconcileConcurrentNotificationsSameReference(t *testing.T) {
	repo := newFakeRepo(pendingTransaction("ref-1"))
	engine := newTestEngine(repo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reconcile(context.Background(), CanonicalNotification{
				MerchantReference: "ref-1",
				Status:            "CONFIRMED",
				PaymentID:         "pay_1",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StateDone, repo.txs["ref-1"].State)
	assert.Equal(t, "pay_1", repo.txs["ref-1"].PaymentID)
	assert.Equal(t, 10, repo.saveCalls)
}
