package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mino1214/juncom-server/internal/domain"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

func expectOrderLock(pool pgxmock.PgxPoolIface, orderID, status, productID string, amount int64) {
	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectQuery("SELECT status, product_id, amount").
		WithArgs(orderID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "product_id", "amount"}).
			AddRow(status, productID, amount))
}

func TestReconcilePayment_PendingToPaid(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "pending", "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusPaid, "TID-9000", "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomePaid,
		TID:     "TID-9000",
		Amount:  49000,
	})
	require.NoError(t, err)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_DuplicatePaidIsNoop(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "paid", "prod-001", 49000)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomePaid,
		TID:     "TID-9000",
		Amount:  49000,
	})
	assert.NoError(t, err)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_PaidOnCanceledIsRejected(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "canceled", "prod-001", 49000)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomePaid,
		TID:     "TID-9000",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_CorruptStoredStatusIsRejected(t *testing.T) {
	f := newOrderServiceFixture(t)

	// A row whose status is outside the known set must never be mutated.
	expectOrderLock(f.pool, "ORD-1", "shipped", "prod-001", 49000)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomeCancelled,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_PendingCancelledRestoresStock(t *testing.T) {
	f := newOrderServiceFixture(t)

	require.NoError(t, f.redis.Set("stock:prod-001", "4"))

	expectOrderLock(f.pool, "ORD-1", "pending", "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCanceled, CancelReasonGateway, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectExec("UPDATE products").
		WithArgs("prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomeCancelled,
	})
	require.NoError(t, err)

	assert.False(t, f.redis.Exists("stock:prod-001"))
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_RefundOnPaidOrder(t *testing.T) {
	f := newOrderServiceFixture(t)

	// paid -> canceled is the single permitted terminal edge.
	expectOrderLock(f.pool, "ORD-1", "paid", "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCanceled, CancelReasonGateway, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectExec("UPDATE products").
		WithArgs("prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomeRefunded,
	})
	require.NoError(t, err)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_DuplicateCancellationIsNoop(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "canceled", "prod-001", 49000)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomeCancelled,
	})
	assert.NoError(t, err)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_AmountMismatch(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "pending", "prod-001", 49000)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomePaid,
		Amount:  1000,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "amount mismatch")

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_UnknownOutcome(t *testing.T) {
	f := newOrderServiceFixture(t)

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: "chargeback",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestReconcilePayment_OrderNotFound(t *testing.T) {
	f := newOrderServiceFixture(t)

	f.pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	f.pool.ExpectQuery("SELECT status, product_id, amount").
		WithArgs("ORD-404").
		WillReturnError(pgx.ErrNoRows)
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-404",
		Outcome: OutcomePaid,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestReconcilePayment_MarkPaidFailure(t *testing.T) {
	f := newOrderServiceFixture(t)

	expectOrderLock(f.pool, "ORD-1", "pending", "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusPaid, "TID-9000", "ORD-1").
		WillReturnError(errors.New("write conflict"))
	f.pool.ExpectRollback()

	err := f.svc.ReconcilePayment(context.Background(), PaymentNotification{
		OrderID: "ORD-1",
		Outcome: OutcomePaid,
		TID:     "TID-9000",
		Amount:  49000,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mark order paid")

	assert.NoError(t, f.pool.ExpectationsWereMet())
}
