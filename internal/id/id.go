package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewTransactionID returns a fresh random transaction ID.
func NewTransactionID() string {
	return uuid.New().String()
}

// importNamespace scopes IDs derived from imported rows.
var importNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("curaledger:import"))

// ImportTransactionID derives a stable transaction ID from the fields that
// identify an imported row. Importing the same row twice yields the same ID.
func ImportTransactionID(source string, fields ...string) string {
	key := source + "\x00" + strings.Join(fields, "\x00")
	return uuid.NewSHA1(importNamespace, []byte(key)).String()
}

// ParseTransactionID validates a transaction ID and returns its canonical form.
func ParseTransactionID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid transaction ID %q: %w", s, err)
	}
	return u.String(), nil
}

// FormatInvoiceNumber returns an invoice number like "INV-2025-00042".
func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%04d-%05d", year, seq)
}

// ParseInvoiceNumber parses "INV-2025-00042" into year and seq.
func ParseInvoiceNumber(number string) (year, seq int, err error) {
	parts := strings.SplitN(number, "-", 3)
	if len(parts) != 3 || parts[0] != "INV" {
		return 0, 0, fmt.Errorf("invalid invoice number format: %q", number)
	}

	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year in invoice number %q: %w", number, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sequence in invoice number %q: %w", number, err)
	}

	return year, seq, nil
}
