package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Validate checks a single transaction record. It returns nil or a
// *DataIntegrityError naming the first violated rule.
func Validate(tx model.Transaction) error {
	fail := func(rule, format string, args ...any) error {
		return &DataIntegrityError{
			TransactionID: tx.ID,
			PartnerID:     tx.PartnerID,
			Rule:          rule,
			Reason:        fmt.Sprintf(format, args...),
		}
	}

	if tx.ID == "" {
		return fail(RuleMissingID, "missing transaction id")
	}
	if tx.PartnerID == "" {
		return fail(RuleMissingPartner, "missing partner reference")
	}
	if !tx.Kind.Valid() {
		return fail(RuleUnknownKind, "unknown kind %q", tx.Kind)
	}
	if tx.Amount.Sign() <= 0 {
		return fail(RuleNonPositiveAmount, "amount %s must be positive", tx.Amount)
	}
	// Cents only.
	if !tx.Amount.Mul(hundred).Equal(tx.Amount.Mul(hundred).Floor()) {
		return fail(RuleAmountPrecision, "amount %s has more than 2 decimal places", tx.Amount)
	}
	if tx.Timestamp.IsZero() {
		return fail(RuleMissingTimestamp, "missing timestamp")
	}
	return nil
}

// ValidateInvoiceRef checks that a transaction's invoice belongs to the same
// partner. inv is the invoice the transaction references.
func ValidateInvoiceRef(tx model.Transaction, inv model.Invoice) error {
	if inv.PartnerID != tx.PartnerID {
		return &DataIntegrityError{
			TransactionID: tx.ID,
			PartnerID:     tx.PartnerID,
			Rule:          RuleInvoicePartner,
			Reason:        fmt.Sprintf("invoice %s belongs to partner %s", inv.ID, inv.PartnerID),
		}
	}
	return nil
}
