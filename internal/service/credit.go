package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/interfaces"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/pricing"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

// HoldingsCredit applies the monetary effect of a PAID transaction to the
// user's holdings. Idempotent per order: the repository's credited_at stamp
// gates the write, so redundant invocations are no-ops.
type HoldingsCredit struct {
	repo   interfaces.TransactionRepository
	prices pricing.Provider
}

func NewHoldingsCredit(repo interfaces.TransactionRepository, prices pricing.Provider) *HoldingsCredit {
	return &HoldingsCredit{repo: repo, prices: prices}
}

func (c *HoldingsCredit) Apply(ctx context.Context, tx *models.Transaction) error {
	if tx.Status != models.StatusPaid {
		return fmt.Errorf("refusing to credit order %s with status %s", tx.OrderID, tx.Status)
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("refusing to credit order %s with amount %f", tx.OrderID, tx.Amount)
	}

	unitPrice, err := c.prices.Quote(ctx, tx.AssetType)
	if err != nil {
		return fmt.Errorf("resolve unit price for %s: %w", tx.AssetType, err)
	}

	entry := &models.LedgerEntry{
		OrderID:   tx.OrderID,
		UserID:    tx.UserID,
		AssetType: tx.AssetType,
		Amount:    tx.Amount,
		Quantity:  tx.Amount / unitPrice,
		UnitPrice: unitPrice,
		CreatedAt: time.Now(),
	}

	if err := c.repo.ApplyCredit(ctx, entry); err != nil {
		if errors.Is(err, models.ErrAlreadyCredited) {
			telemetry.Logger.Info("Credit already applied, skipping",
				zap.String("order_id", tx.OrderID),
			)
			return nil
		}
		return fmt.Errorf("apply credit for order %s: %w", tx.OrderID, err)
	}

	telemetry.CreditsApplied.WithLabelValues(string(tx.AssetType)).Inc()
	telemetry.Logger.Info("Holdings credited",
		zap.String("order_id", tx.OrderID),
		zap.String("user_id", tx.UserID),
		zap.String("asset_type", string(tx.AssetType)),
		zap.Float64("amount", entry.Amount),
		zap.Float64("quantity", entry.Quantity),
		zap.Float64("unit_price", unitPrice),
	)
	return nil
}
