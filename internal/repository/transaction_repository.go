package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/aurumly/payment-reconciler/internal/models"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			order_id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			asset_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			payment_id VARCHAR(255),
			payment_method VARCHAR(100),
			failure_reason TEXT,
			session_id VARCHAR(255),
			quantity NUMERIC(14,6),
			credited_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			user_id VARCHAR(255) NOT NULL,
			asset_type VARCHAR(20) NOT NULL,
			amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			quantity NUMERIC(16,6) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, asset_type)
		)`,
		`CREATE TABLE IF NOT EXISTS holdings_ledger (
			id BIGSERIAL PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			asset_type VARCHAR(20) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			quantity NUMERIC(14,6) NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_order ON holdings_ledger(order_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Create inserts a new transaction. An existing order id is rejected, never
// overwritten.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (order_id, user_id, amount, asset_type, status)
		VALUES ($1, $2, $3, $4, $5)
	`, tx.OrderID, tx.UserID, tx.Amount, tx.AssetType, models.StatusCreated)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.ErrOrderExists
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var (
		tx            models.Transaction
		paymentID     sql.NullString
		paymentMethod sql.NullString
		failureReason sql.NullString
		sessionID     sql.NullString
		quantity      sql.NullFloat64
		creditedAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, user_id, amount, asset_type, status, payment_id,
		       payment_method, failure_reason, session_id, quantity,
		       credited_at, created_at, updated_at
		FROM transactions WHERE order_id = $1
	`, orderID).Scan(
		&tx.OrderID, &tx.UserID, &tx.Amount, &tx.AssetType, &tx.Status,
		&paymentID, &paymentMethod, &failureReason, &sessionID, &quantity,
		&creditedAt, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select transaction: %w", err)
	}

	tx.PaymentID = paymentID.String
	tx.PaymentMethod = paymentMethod.String
	tx.FailureReason = failureReason.String
	tx.SessionID = sessionID.String
	tx.Quantity = quantity.Float64
	if creditedAt.Valid {
		tx.CreditedAt = &creditedAt.Time
	}
	return &tx, nil
}

// ActivateSession records the gateway session and moves CREATED to
// SESSION_ACTIVE.
func (r *TransactionRepository) ActivateSession(ctx context.Context, orderID, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, session_id = $2, updated_at = NOW()
		WHERE order_id = $3 AND status = $4
	`, models.StatusSessionActive, sessionID, orderID, models.StatusCreated)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return requireRow(result, orderID)
}

// MarkPending moves SESSION_ACTIVE to PENDING once the user has been handed
// to the gateway.
func (r *TransactionRepository) MarkPending(ctx context.Context, orderID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE order_id = $2 AND status = $3
	`, models.StatusPending, orderID, models.StatusSessionActive)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return requireRow(result, orderID)
}

// CommitTerminal is the single-row compare-and-swap every terminal
// transition funnels through. The guard admits only non-terminal rows, so a
// late report for an already-terminal transaction changes nothing and
// returns zero rows. With fromUnknown set, UNKNOWN rows are also admitted;
// PAID and FAILED are immutable either way.
func (r *TransactionRepository) CommitTerminal(
	ctx context.Context,
	orderID string,
	to models.TransactionStatus,
	paymentID, paymentMethod, failureReason string,
	fromUnknown bool,
) (int64, error) {
	excluded := []string{string(models.StatusPaid), string(models.StatusFailed)}
	if !fromUnknown {
		excluded = append(excluded, string(models.StatusUnknown))
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    payment_id = COALESCE(NULLIF($2, ''), payment_id),
		    payment_method = COALESCE(NULLIF($3, ''), payment_method),
		    failure_reason = NULLIF($4, ''),
		    updated_at = NOW()
		WHERE order_id = $5 AND status != ALL($6)
	`, to, paymentID, paymentMethod, failureReason, orderID, pq.Array(excluded))
	if err != nil {
		return 0, fmt.Errorf("commit terminal status: %w", err)
	}
	return result.RowsAffected()
}

// ApplyCredit stamps credited_at, increases the holding and appends the
// ledger row in one database transaction. The credited_at stamp is the
// idempotency gate: a second call for the same order finds it set and
// returns ErrAlreadyCredited without touching holdings.
func (r *TransactionRepository) ApplyCredit(ctx context.Context, entry *models.LedgerEntry) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit tx: %w", err)
	}
	defer sqlTx.Rollback()

	result, err := sqlTx.ExecContext(ctx, `
		UPDATE transactions
		SET credited_at = NOW(), quantity = $1, updated_at = NOW()
		WHERE order_id = $2 AND status = $3 AND credited_at IS NULL
	`, entry.Quantity, entry.OrderID, models.StatusPaid)
	if err != nil {
		return fmt.Errorf("stamp credited_at: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamp credited_at: %w", err)
	}
	if rows == 0 {
		return models.ErrAlreadyCredited
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO holdings (user_id, asset_type, amount, quantity, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, asset_type) DO UPDATE
		SET amount = holdings.amount + EXCLUDED.amount,
		    quantity = holdings.quantity + EXCLUDED.quantity,
		    updated_at = NOW()
	`, entry.UserID, entry.AssetType, entry.Amount, entry.Quantity)
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO holdings_ledger (order_id, user_id, asset_type, amount, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.OrderID, entry.UserID, entry.AssetType, entry.Amount, entry.Quantity, entry.UnitPrice)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return sqlTx.Commit()
}

// GetHolding returns the current position for one (user, asset) pair.
func (r *TransactionRepository) GetHolding(ctx context.Context, userID string, asset models.AssetType) (*models.Holding, error) {
	var h models.Holding
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, asset_type, amount, quantity, updated_at
		FROM holdings WHERE user_id = $1 AND asset_type = $2
	`, userID, asset).Scan(&h.UserID, &h.AssetType, &h.Amount, &h.Quantity, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.Holding{UserID: userID, AssetType: asset}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select holding: %w", err)
	}
	return &h, nil
}

func requireRow(result sql.Result, orderID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %s: no row in expected state", orderID)
	}
	return nil
}
