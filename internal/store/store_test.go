package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/curasupply/curaledger/internal/model"
)

func TestFilterMatch(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 2, d, 0, 0, 0, 0, time.UTC) }
	tx := model.Transaction{PartnerID: "p-1", Timestamp: day(10)}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"same partner", Filter{PartnerID: "p-1"}, true},
		{"other partner", Filter{PartnerID: "p-2"}, false},
		{"from inclusive", Filter{From: day(10)}, true},
		{"from after", Filter{From: day(11)}, false},
		{"to exclusive", Filter{To: day(10)}, false},
		{"to after", Filter{To: day(11)}, true},
		{"range", Filter{PartnerID: "p-1", From: day(1), To: day(28)}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.filter.Match(tx), tt.name)
	}
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("listing: %w", Unavailable("list_transactions", cause))

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "list_transactions")

	assert.NoError(t, Unavailable("noop", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrContention))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.True(t, IsNotFound(fmt.Errorf("partner p-1: %w", ErrNotFound)))
}
