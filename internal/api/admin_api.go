package api

import (
	"bytes"
	"net/http"

	"nook/internal/config"
	"nook/internal/db"
	"nook/internal/events"
	"nook/internal/lanes"
	"nook/internal/report"
)

// ActiveRequest is the request body for POST /api/promotions/{id}/active.
type ActiveRequest struct {
	Active *bool `json:"active"`
}

// CenterBlocksResponse is the response for GET /api/centers/{id}/blocks.
type CenterBlocksResponse struct {
	CenterID string            `json:"center_id"`
	Blocks   []lanes.LaneBlock `json:"blocks"`
}

// handleGetPromotion returns a stored promotion.
// GET /api/promotions/{id}
func (s *Server) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetPromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpsertPromotion creates or edits an admin-owned promotion. Rules
// loaded from catalog.yaml cannot be edited here.
// PUT /api/promotions/{id}
func (s *Server) handleUpsertPromotion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req config.PromotionConfig
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, http.StatusBadRequest, "id does not match path")
		return
	}
	req.ID = id

	rule, err := req.Rule()
	if err == nil {
		err = rule.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpsertPromotion(r.Context(), rule, db.SourceAdmin); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	stored, err := s.store.GetPromotion(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.PromotionUpserted, Subject: id, Attrs: map[string]any{"kind": stored.Kind.String()}})
	s.logger.Info().Str("promotion", id).Str("kind", stored.Kind.String()).Msg("promotion upserted")
	writeJSON(w, http.StatusOK, stored)
}

// handleSetPromotionActive toggles a promotion.
// POST /api/promotions/{id}/active
func (s *Server) handleSetPromotionActive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req ActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	if err := s.store.SetPromotionActive(r.Context(), id, *req.Active); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.PromotionToggled, Subject: id, Attrs: map[string]any{"active": *req.Active}})
	s.logger.Info().Str("promotion", id).Bool("active", *req.Active).Msg("promotion toggled")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}

// handleDeletePromotion removes a promotion.
// DELETE /api/promotions/{id}
func (s *Server) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeletePromotion(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.PromotionDeleted, Subject: id})
	s.logger.Info().Str("promotion", id).Msg("promotion deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleCenters lists every center.
// GET /api/centers
func (s *Server) handleCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := s.store.ListCenters(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if centers == nil {
		centers = []db.Center{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"centers": centers})
}

// handleCenterBlocks lists every block of a center's lanes.
// GET /api/centers/{id}/blocks
func (s *Server) handleCenterBlocks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	centers, err := s.store.ListCenters(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	known := false
	for _, c := range centers {
		known = known || c.ID == id
	}
	if !known {
		writeError(w, http.StatusNotFound, "unknown center")
		return
	}

	blocks, err := s.store.ListCenterBlocks(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []lanes.LaneBlock{}
	}
	writeJSON(w, http.StatusOK, CenterBlocksResponse{CenterID: id, Blocks: blocks})
}

// handleRefresh drops the cached snapshot.
// POST /api/catalog/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.changed(r, events.Event{Type: events.CatalogRefreshed})
	snap, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded_at":  snap.LoadedAt,
		"promotions": len(snap.Promotions),
		"blocks":     len(snap.Blocks),
	})
}

// handleReport streams the catalog workbook.
// GET /api/reports/catalog
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "reports disabled")
		return
	}

	// Built in memory so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := s.reports.Write(r.Context(), &buf); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(s.pricer.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
