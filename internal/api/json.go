package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/curasupply/curaledger/internal/authz"
	"github.com/curasupply/curaledger/internal/finance"
	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// retryAfter is sent with 503 responses.
const retryAfter = 5 * time.Second

const dateLayout = "2006-01-02"

type lineJSON struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	PartnerID      string `json:"partner_id"`
	PartnerName    string `json:"partner_name"`
	Kind           string `json:"kind"`
	SignedAmount   string `json:"signed_amount"`
	RunningBalance string `json:"running_balance"`
	InvoiceID      string `json:"invoice_id,omitempty"`
	OrderNumber    string `json:"order_number,omitempty"`
	Description    string `json:"description,omitempty"`
}

type summaryJSON struct {
	TotalDebt        string `json:"total_debt"`
	TotalCredit      string `json:"total_credit"`
	CurrentBalance   string `json:"current_balance"`
	TransactionCount int    `json:"transaction_count"`
}

type statementJSON struct {
	PartnerID      string      `json:"partner_id,omitempty"`
	From           string      `json:"from,omitempty"`
	To             string      `json:"to,omitempty"`
	OpeningBalance string      `json:"opening_balance"`
	Lines          []lineJSON  `json:"lines"`
	Summary        summaryJSON `json:"summary"`
}

type partnerJSON struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	TaxNumber        string  `json:"tax_number,omitempty"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Address          string  `json:"address,omitempty"`
	CachedBalance    string  `json:"cached_balance"`
	BalanceUpdatedAt *string `json:"balance_updated_at,omitempty"`
}

type transactionJSON struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	PartnerID   string `json:"partner_id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	Description string `json:"description,omitempty"`
}

func toLines(lines []ledger.Line) []lineJSON {
	out := make([]lineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineJSON{
			ID:             l.Transaction.ID,
			Date:           l.Transaction.Timestamp.UTC().Format(time.RFC3339),
			PartnerID:      l.Transaction.PartnerID,
			PartnerName:    l.PartnerName,
			Kind:           string(l.Transaction.Kind),
			SignedAmount:   l.SignedAmount.StringFixed(2),
			RunningBalance: l.Balance.StringFixed(2),
			InvoiceID:      l.Transaction.InvoiceID,
			OrderNumber:    l.Transaction.OrderNumber,
			Description:    l.Transaction.Description,
		})
	}
	return out
}

func toSummary(s ledger.Summary) summaryJSON {
	return summaryJSON{
		TotalDebt:        s.TotalDebt.StringFixed(2),
		TotalCredit:      s.TotalCredit.StringFixed(2),
		CurrentBalance:   s.CurrentBalance.StringFixed(2),
		TransactionCount: s.TransactionCount,
	}
}

func toStatement(st finance.Statement) statementJSON {
	out := statementJSON{
		PartnerID:      st.Filter.PartnerID,
		OpeningBalance: st.Opening.StringFixed(2),
		Lines:          toLines(st.Lines),
		Summary:        toSummary(st.Summary),
	}
	if !st.Filter.From.IsZero() {
		out.From = st.Filter.From.Format(dateLayout)
	}
	if !st.Filter.To.IsZero() {
		// To is exclusive; show the last day included.
		out.To = st.Filter.To.AddDate(0, 0, -1).Format(dateLayout)
	}
	return out
}

func toPartner(p model.Partner) partnerJSON {
	out := partnerJSON{
		ID:            p.ID,
		Name:          p.Name,
		Type:          string(p.Type),
		TaxNumber:     p.TaxNumber,
		Email:         p.Email,
		Phone:         p.Phone,
		Address:       p.Address,
		CachedBalance: p.CachedBalance.StringFixed(2),
	}
	if !p.BalanceUpdatedAt.IsZero() {
		at := p.BalanceUpdatedAt.UTC().Format(time.RFC3339)
		out.BalanceUpdatedAt = &at
	}
	return out
}

func toTransaction(tx model.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		Seq:         tx.Seq,
		PartnerID:   tx.PartnerID,
		Kind:        string(tx.Kind),
		Amount:      tx.Amount.StringFixed(2),
		Date:        tx.Timestamp.UTC().Format(time.RFC3339),
		InvoiceID:   tx.InvoiceID,
		OrderNumber: tx.OrderNumber,
		Description: tx.Description,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	case store.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, finance.ErrInvalidPartner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	writeError(w, status, err.Error())
}

// failBalance reports a failed balance read. The balance is null, never zero.
func (s *Server) failBalance(w http.ResponseWriter, err error, extra map[string]any) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	body := map[string]any{
		"balance": nil,
		"status":  "balance unavailable",
		"error":   err.Error(),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// parseRange reads ?from=YYYY-MM-DD&to=YYYY-MM-DD. to is inclusive of the
// whole day, so the returned To is the start of the following day.
func parseRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, err = parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}

func parseDate(v string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, v, time.UTC)
}
