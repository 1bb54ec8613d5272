package upi

import (
	"fmt"
	"net/url"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/models"
)

// Builder produces upi://pay deep links that open a mobile payment app with
// the payment pre-filled. Pure; no network access.
type Builder struct {
	payeeVPA     string
	payeeName    string
	merchantCode string
}

func NewBuilder(cfg config.UPIConfig) *Builder {
	return &Builder{
		payeeVPA:     cfg.PayeeVPA,
		payeeName:    cfg.PayeeName,
		merchantCode: cfg.MerchantCode,
	}
}

// BuildIntentURI builds the deep link for one order. The transaction
// reference is the order id so the payment can be correlated later.
func (b *Builder) BuildIntentURI(amount float64, orderID, note string) (string, error) {
	if b.payeeVPA == "" {
		return "", &models.ValidationError{Field: "payee_vpa", Reason: "not configured"}
	}
	if orderID == "" {
		return "", &models.ValidationError{Field: "order_id", Reason: "required"}
	}
	if amount <= 0 {
		return "", &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if note == "" {
		note = fmt.Sprintf("Payment for order %s", orderID)
	}

	params := url.Values{}
	params.Set("pa", b.payeeVPA)
	params.Set("pn", b.payeeName)
	params.Set("am", fmt.Sprintf("%.2f", amount))
	params.Set("tr", orderID)
	params.Set("tn", note)
	params.Set("cu", "INR")
	if b.merchantCode != "" {
		params.Set("mc", b.merchantCode)
	}

	return "upi://pay?" + params.Encode(), nil
}
