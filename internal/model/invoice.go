package model

// Invoice links ledger transactions to the order they settle.
type Invoice struct {
	ID          string
	Number      string
	PartnerID   string
	OrderNumber string
}
