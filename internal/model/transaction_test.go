package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSigned(t *testing.T) {
	amt := decimal.RequireFromString("12.50")

	debt := Transaction{Kind: KindDebt, Amount: amt}
	credit := Transaction{Kind: KindCredit, Amount: amt}

	assert.True(t, debt.Signed().Equal(amt))
	assert.True(t, credit.Signed().Equal(amt.Neg()))
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindDebt.Valid())
	assert.True(t, KindCredit.Valid())
	assert.False(t, Kind("REFUND").Valid())
	assert.False(t, Kind("").Valid())
}

func TestBefore(t *testing.T) {
	t1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	tests := []struct {
		name string
		a, b Transaction
		want bool
	}{
		{"earlier timestamp", Transaction{Timestamp: t1, Seq: 9}, Transaction{Timestamp: t2, Seq: 1}, true},
		{"later timestamp", Transaction{Timestamp: t2, Seq: 1}, Transaction{Timestamp: t1, Seq: 9}, false},
		{"tie broken by seq", Transaction{Timestamp: t1, Seq: 1}, Transaction{Timestamp: t1, Seq: 2}, true},
		{"equal", Transaction{Timestamp: t1, Seq: 1}, Transaction{Timestamp: t1, Seq: 1}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Before(tt.b), tt.name)
	}
}

func TestPartnerTypeValid(t *testing.T) {
	for _, pt := range []PartnerType{PartnerTypeCustomer, PartnerTypeSupplier, PartnerTypeBoth} {
		assert.True(t, pt.Valid(), "%s", pt)
	}
	assert.False(t, PartnerType("VENDOR").Valid())
}
