package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/acctportal/billingcore/internal/cache"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/security"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return postgres.NewFromSQLX(sqlx.NewDb(raw, "postgres"), logger.NewNoopLogger()), mock
}

func newEncryption(t *testing.T) security.EncryptionService {
	t.Helper()
	cfg := &config.Configuration{Secrets: config.SecretsConfig{EncryptionKey: "repository-test-key"}}
	svc, err := security.NewEncryptionService(cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	return svc
}

func TestSubscriptionRepository_UpdateVersionConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, newEncryption(t), logger.NewNoopLogger())

	mock.ExpectExec("UPDATE subscriptions SET").WillReturnResult(sqlmock.NewResult(0, 0))

	sub := &subscription.Subscription{ID: "subs_1", Version: 3, AmountPeriodDays: 30}
	sub.TenantID = "tenant-1"
	err := repo.Update(context.Background(), sub)

	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, 3, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_UpdateBumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, newEncryption(t), logger.NewNoopLogger())

	mock.ExpectExec("UPDATE subscriptions SET").WillReturnResult(sqlmock.NewResult(0, 1))

	sub := &subscription.Subscription{ID: "subs_1", Version: 3, BillingKey: "bk_live", AmountPeriodDays: 30}
	sub.TenantID = "tenant-1"
	require.NoError(t, repo.Update(context.Background(), sub))

	assert.Equal(t, 4, sub.Version)
	// the caller's copy keeps the plaintext key
	assert.Equal(t, "bk_live", sub.BillingKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_GetDecryptsBillingKey(t *testing.T) {
	db, mock := newMockDB(t)
	enc := newEncryption(t)
	repo := NewSubscriptionRepository(db, enc, logger.NewNoopLogger())

	sealed, err := enc.Encrypt("bk_live")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "plan", "status", "amount", "billing_key", "customer_key", "card_info", "version"}).
		AddRow("subs_1", "tenant-1", "basic", "active", 39000, sealed, "cus_tenant-1", []byte(`{"number":"4330****1234","company":"Shinhan"}`), 2)
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE tenant_id = \\$1").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	sub, err := repo.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "bk_live", sub.BillingKey)
	assert.Equal(t, "cus_tenant-1", sub.CustomerKey)
	assert.Equal(t, types.PlanBasic, sub.Plan)
	assert.Equal(t, "Shinhan", sub.CardInfo.Company)
	assert.Equal(t, 2, sub.Version)
}

func TestSubscriptionRepository_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, newEncryption(t), logger.NewNoopLogger())

	mock.ExpectQuery("SELECT (.+) FROM subscriptions").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestPaymentRepository_CreateDuplicateKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger(), cache.NewInMemoryCache(config.GetDefaultConfig()))

	mock.ExpectExec("INSERT INTO payments").WillReturnError(&pq.Error{Code: "23505"})

	p := &payment.Payment{ID: "pay_1", IdempotencyKey: "k1", TransactionType: types.TransactionTypeCharge}
	err := repo.Create(context.Background(), p)
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
}

func TestPaymentRepository_AddRefundedAmountOverflow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger(), cache.NewInMemoryCache(config.GetDefaultConfig()))

	mock.ExpectExec("UPDATE payments").
		WithArgs("tenant-1", "pay_1", int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddRefundedAmount(context.Background(), "tenant-1", "pay_1", 5000)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListByIdempotencyKeyIsCached(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger(), cache.NewInMemoryCache(config.GetDefaultConfig()))

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "amount", "transaction_type", "status", "idempotency_key", "card_info"}).
		AddRow("pay_1", "tenant-1", 43839, "charge", "done", "k1", []byte(`{}`))
	mock.ExpectQuery("SELECT (.+) FROM payments").
		WithArgs("tenant-1", "k1").
		WillReturnRows(rows)

	first, err := repo.ListByIdempotencyKey(context.Background(), "tenant-1", "k1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// second read must not reach the database
	second, err := repo.ListByIdempotencyKey(context.Background(), "tenant-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetLatestChargeNone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger(), cache.NewInMemoryCache(config.GetDefaultConfig()))

	mock.ExpectQuery("SELECT (.+) FROM payments").
		WithArgs("tenant-1", types.TransactionTypeCharge, types.PaymentStatusDone).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetLatestCharge(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestHistoryRepository_SecondOpenSegmentRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, logger.NewNoopLogger())

	mock.ExpectExec("INSERT INTO subscription_history").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &history.Record{ID: "shist_1", TenantID: "tenant-1", PeriodStart: time.Now()})
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
}

func TestHistoryRepository_CloseClosedSegment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, logger.NewNoopLogger())

	mock.ExpectExec("UPDATE subscription_history SET period_end").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Close(context.Background(), "tenant-1", "shist_1", time.Now())
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
}

func TestHistoryRepository_WritesJoinTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, logger.NewNoopLogger())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscription_history SET period_end").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscription_history").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		if err := repo.Close(ctx, "tenant-1", "shist_1", now); err != nil {
			return err
		}
		return repo.Create(ctx, &history.Record{ID: "shist_2", TenantID: "tenant-1", PeriodStart: now})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, logger.NewNoopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscription_history SET period_end").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.Close(ctx, "tenant-1", "shist_1", time.Now())
	})
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_CountByTenant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM subscription_history WHERE tenant_id").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepository_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardRepository(db, newEncryption(t), logger.NewNoopLogger())

	mock.ExpectExec("DELETE FROM cards").
		WithArgs("tenant-1", "card_x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "tenant-1", "card_x")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}
