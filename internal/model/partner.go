package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerType classifies a counterparty.
type PartnerType string

const (
	PartnerTypeCustomer PartnerType = "CUSTOMER"
	PartnerTypeSupplier PartnerType = "SUPPLIER"
	PartnerTypeBoth     PartnerType = "BOTH"
)

// Valid reports whether p is a known partner type.
func (p PartnerType) Valid() bool {
	switch p {
	case PartnerTypeCustomer, PartnerTypeSupplier, PartnerTypeBoth:
		return true
	}
	return false
}

// Partner is a customer or supplier account.
//
// CachedBalance is a denormalized copy of the ledger fold. It is rewritten
// after every transaction write and is never used for financial reporting.
type Partner struct {
	ID               string
	Name             string
	Type             PartnerType
	TaxNumber        string
	Email            string
	Phone            string
	Address          string
	CachedBalance    decimal.Decimal
	BalanceUpdatedAt time.Time
}
