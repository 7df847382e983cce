package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/authz"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// signIn is a placeholder; sessions are established in front of this service.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "sign in required"})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	id := authz.FromContext(r.Context())
	body := map[string]any{"role": id.Role}

	if id.Role != authz.RoleCustomer {
		partners, err := s.svc.Partners(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		body["partner_count"] = len(partners)
		writeJSON(w, http.StatusOK, body)
		return
	}

	body["partner_id"] = id.PartnerID
	f, err := authz.ScopeFilter(id, store.Filter{})
	if err != nil {
		s.failBalance(w, err, body)
		return
	}
	balance, err := s.svc.Balance(r.Context(), f.PartnerID)
	if err != nil {
		s.failBalance(w, err, body)
		return
	}
	body["balance"] = balance.StringFixed(2)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) statement(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	partnerID := mux.Vars(r)["partnerID"]
	if partnerID == "" {
		partnerID = r.URL.Query().Get("partner_id")
	}

	f, err := authz.ScopeFilter(authz.FromContext(r.Context()),
		store.Filter{PartnerID: partnerID, From: from, To: to})
	if err != nil {
		s.failBalance(w, err, nil)
		return
	}
	if f.PartnerID == "" {
		writeError(w, http.StatusBadRequest, "partner_id is required")
		return
	}

	st, err := s.svc.Statement(r.Context(), f)
	if err != nil {
		s.failBalance(w, err, map[string]any{"partner_id": f.PartnerID})
		return
	}
	writeJSON(w, http.StatusOK, toStatement(st))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := authz.ScopeFilter(authz.FromContext(r.Context()), store.Filter{
		PartnerID: r.URL.Query().Get("partner_id"),
		From:      from,
		To:        to,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	st, err := s.svc.Statement(r.Context(), f)
	if err != nil {
		s.failBalance(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toStatement(st))
}

type recordRequest struct {
	ID          string          `json:"id"`
	PartnerID   string          `json:"partner_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Date        *time.Time      `json:"date"`
	InvoiceID   string          `json:"invoice_id"`
	Description string          `json:"description"`
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx := model.Transaction{
		ID:          req.ID,
		PartnerID:   req.PartnerID,
		Kind:        model.Kind(req.Kind),
		Amount:      req.Amount,
		InvoiceID:   req.InvoiceID,
		Description: req.Description,
	}
	if req.Date != nil {
		tx.Timestamp = *req.Date
	}

	id := authz.FromContext(r.Context())
	stored, err := s.svc.Record(r.Context(), id.Actor(), tx)
	if err != nil {
		if stored.ID != "" {
			// Appended, but the cached balance is stale until the next recompute.
			w.Header().Set("Retry-After", "5")
			writeJSON(w, http.StatusAccepted, map[string]any{
				"transaction": toTransaction(stored),
				"balance":     nil,
				"status":      "balance unavailable",
				"error":       err.Error(),
			})
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransaction(stored))
}

func (s *Server) listPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := s.svc.Partners(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]partnerJSON, 0, len(partners))
	for _, p := range partners {
		out = append(out, toPartner(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) savePartner(w http.ResponseWriter, r *http.Request) {
	var req partnerJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.svc.SavePartner(r.Context(), authz.FromContext(r.Context()).Actor(), model.Partner{
		ID:        req.ID,
		Name:      req.Name,
		Type:      model.PartnerType(req.Type),
		TaxNumber: req.TaxNumber,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartner(p))
}

func (s *Server) getPartner(w http.ResponseWriter, r *http.Request) {
	partnerID := mux.Vars(r)["partnerID"]
	p, err := s.svc.Partner(r.Context(), partnerID)
	if err != nil {
		s.fail(w, err)
		return
	}

	body := map[string]any{"partner": toPartner(p)}
	balance, err := s.svc.Balance(r.Context(), partnerID)
	if err != nil {
		s.failBalance(w, err, body)
		return
	}
	body["balance"] = balance.StringFixed(2)
	body["cache_in_sync"] = balance.Equal(p.CachedBalance)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) recompute(w http.ResponseWriter, r *http.Request) {
	partnerID := mux.Vars(r)["partnerID"]
	balance, err := s.svc.Recompute(r.Context(), authz.FromContext(r.Context()).Actor(), partnerID)
	if err != nil {
		s.failBalance(w, err, map[string]any{"partner_id": partnerID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"partner_id": partnerID,
		"balance":    balance.StringFixed(2),
	})
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartnerID   string `json:"partner_id"`
		OrderNumber string `json:"order_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := s.svc.CreateInvoice(r.Context(), authz.FromContext(r.Context()).Actor(), req.PartnerID, req.OrderNumber)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":           inv.ID,
		"number":       inv.Number,
		"partner_id":   inv.PartnerID,
		"order_number": inv.OrderNumber,
	})
}

type reportPartnerJSON struct {
	Partner   partnerJSON   `json:"partner"`
	Statement statementJSON `json:"statement"`
}

type reportErrorJSON struct {
	PartnerID string  `json:"partner_id"`
	Balance   *string `json:"balance"`
	Status    string  `json:"status"`
	Error     string  `json:"error"`
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.svc.Report(r.Context(), store.Filter{From: from, To: to})
	if err != nil {
		s.fail(w, err)
		return
	}

	partners := make([]reportPartnerJSON, 0, len(report.Partners))
	for _, ps := range report.Partners {
		partners = append(partners, reportPartnerJSON{
			Partner:   toPartner(ps.Partner),
			Statement: toStatement(ps.Statement),
		})
	}
	failures := make([]reportErrorJSON, 0, len(report.Errors))
	for _, pe := range report.Errors {
		failures = append(failures, reportErrorJSON{
			PartnerID: pe.PartnerID,
			Status:    "balance unavailable",
			Error:     pe.Err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"partners": partners,
		"errors":   failures,
	})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	repair := r.URL.Query().Get("repair") == "true"
	result, err := s.svc.Reconcile(r.Context(), authz.FromContext(r.Context()).Actor(), repair)
	if err != nil {
		s.fail(w, err)
		return
	}

	drift := make([]map[string]any, 0, len(result.Drift))
	for _, d := range result.Drift {
		drift = append(drift, map[string]any{
			"partner_id": d.PartnerID,
			"cached":     d.Cached.StringFixed(2),
			"computed":   d.Computed.StringFixed(2),
			"repaired":   d.Repaired,
		})
	}
	failures := make([]map[string]string, 0, len(result.Errors))
	for _, pe := range result.Errors {
		failures = append(failures, map[string]string{"partner_id": pe.PartnerID, "error": pe.Err.Error()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checked": result.Checked,
		"drift":   drift,
		"errors":  failures,
	})
}
