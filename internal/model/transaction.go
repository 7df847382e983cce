package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindDebt   Kind = "DEBT"   // increases what the partner owes
	KindCredit Kind = "CREDIT" // decreases what the partner owes
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	return k == KindDebt || k == KindCredit
}

// Transaction is one immutable entry in the partner ledger.
type Transaction struct {
	ID          string
	Seq         int64 // store-assigned, breaks ties on equal timestamps
	PartnerID   string
	Kind        Kind
	Amount      decimal.Decimal // always positive; Kind carries the sign
	Timestamp   time.Time
	InvoiceID   string // optional
	OrderNumber string // derived through InvoiceID
	Description string
}

// Signed returns the transaction's contribution to the partner balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == KindCredit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Before reports whether t sorts before u in ledger order (timestamp, then seq).
func (t Transaction) Before(u Transaction) bool {
	if !t.Timestamp.Equal(u.Timestamp) {
		return t.Timestamp.Before(u.Timestamp)
	}
	return t.Seq < u.Seq
}
