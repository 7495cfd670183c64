package api

import (
	"net/http"
	"time"

	"nook/internal/pricing"
	"nook/internal/promotions"
)

// QuoteRequest is the request body for POST /api/quote.
type QuoteRequest struct {
	ServiceID string `json:"service_id"`
	CenterID  string `json:"center_id,omitempty"`
	At        string `json:"at,omitempty"`         // RFC 3339, defaults to now
	BasePrice *int64 `json:"base_price,omitempty"` // cents, overrides the list price
}

// ApplicableResponse is the response for GET /api/promotions/applicable.
type ApplicableResponse struct {
	At         time.Time         `json:"at"`
	Promotions []promotions.Rule `json:"promotions"`
}

// handleQuote prices a booking with the best promotion.
// POST /api/quote
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}
	if req.BasePrice != nil && *req.BasePrice < 0 {
		writeError(w, http.StatusBadRequest, "base_price must not be negative")
		return
	}
	at, err := s.parseInstant(req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.pricer.Quote(r.Context(), pricing.QuoteRequest{
		ServiceID: req.ServiceID,
		CenterID:  req.CenterID,
		At:        at,
		BasePrice: req.BasePrice,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleApplicable lists the promotions open right now for badges.
// GET /api/promotions/applicable?service_id=&center_id=&at=
func (s *Server) handleApplicable(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	at, err := s.parseInstant(query.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rules, err := s.pricer.Applicable(r.Context(), query.Get("service_id"), query.Get("center_id"), at)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if rules == nil {
		rules = []promotions.Rule{}
	}
	writeJSON(w, http.StatusOK, ApplicableResponse{At: at, Promotions: rules})
}
