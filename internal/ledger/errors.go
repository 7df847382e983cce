package ledger

import (
	"errors"
	"fmt"
)

// ErrDataIntegrity matches every *DataIntegrityError via errors.Is.
var ErrDataIntegrity = errors.New("ledger: data integrity violation")

// Rules a transaction record can violate. They are stable identifiers,
// suitable as metric labels.
const (
	RuleMissingID         = "missing_id"
	RuleMissingPartner    = "missing_partner"
	RuleUnknownKind       = "unknown_kind"
	RuleNonPositiveAmount = "non_positive_amount"
	RuleAmountPrecision   = "amount_precision"
	RuleMissingTimestamp  = "missing_timestamp"
	RuleInvoicePartner    = "invoice_partner_mismatch"
	RuleMalformedRecord   = "malformed_record"
)

// DataIntegrityError describes a malformed or inconsistent transaction record.
// A fold that meets one aborts instead of skipping the record.
type DataIntegrityError struct {
	TransactionID string
	PartnerID     string
	Rule          string
	Reason        string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity [tx %s, partner %s]: %s", e.TransactionID, e.PartnerID, e.Reason)
}

// Is lets errors.Is(err, ErrDataIntegrity) match.
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}
