package api

import (
	"fmt"
	"net/http"
	"time"

	"nook/internal/events"
	"nook/internal/lanes"
	"nook/internal/slots"
	"nook/internal/timewindow"
)

// BlockRequest is the request body for creating or replacing a lane block.
type BlockRequest struct {
	LaneID   string    `json:"lane_id,omitempty"` // PUT only; defaults to the replaced block's lane
	CenterID string    `json:"center_id,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason,omitempty"`
}

// BlockedResponse is the response for GET /api/lanes/{lane}/blocked.
type BlockedResponse struct {
	LaneID  string           `json:"lane_id"`
	At      time.Time        `json:"at"`
	Blocked bool             `json:"blocked"`
	Block   *lanes.LaneBlock `json:"block"`
}

// BlocksResponse is the response for GET /api/lanes/{lane}/blocks.
type BlocksResponse struct {
	LaneID string            `json:"lane_id"`
	Date   string            `json:"date"`
	Blocks []lanes.LaneBlock `json:"blocks"`
}

// SlotsResponse is the response for GET /api/lanes/{lane}/slots.
type SlotsResponse struct {
	LaneID      string             `json:"lane_id"`
	Date        string             `json:"date"`
	Closed      bool               `json:"closed"`
	Reason      string             `json:"reason,omitempty"` // "holiday", "day_off", "closed"
	Slots       []slots.SlotInfo   `json:"slots"`
	FreeWindows []slots.FreeWindow `json:"free_windows"`
	// StartCheck is present when the request names a start time.
	StartCheck *slots.StartCheck `json:"start_check,omitempty"`
}

func (req BlockRequest) validate() error {
	if req.Start.IsZero() || req.End.IsZero() {
		return fmt.Errorf("start and end are required")
	}
	if !req.End.After(req.Start) {
		return fmt.Errorf("end must be after start")
	}
	return nil
}

// handleLaneBlocked reports the block covering a lane at an instant.
// GET /api/lanes/{lane}/blocked?at=RFC3339
func (s *Server) handleLaneBlocked(w http.ResponseWriter, r *http.Request) {
	laneID := r.PathValue("lane")
	at, err := s.parseInstant(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.pricer.BlockAt(r.Context(), laneID, at)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BlockedResponse{LaneID: laneID, At: at, Blocked: b != nil, Block: b})
}

// handleLaneBlocks lists the blocks touching a day.
// GET /api/lanes/{lane}/blocks?date=YYYY-MM-DD
func (s *Server) handleLaneBlocks(w http.ResponseWriter, r *http.Request) {
	laneID := r.PathValue("lane")
	day, err := s.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocks, err := s.pricer.BlocksOn(r.Context(), laneID, day)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []lanes.LaneBlock{}
	}
	writeJSON(w, http.StatusOK, BlocksResponse{LaneID: laneID, Date: day.Format("2006-01-02"), Blocks: blocks})
}

// handleLaneSlots returns the slot grid of a lane for a day. With start,
// it also reports whether service_id (one slot when omitted) fits there.
// GET /api/lanes/{lane}/slots?date=YYYY-MM-DD&start=HH:MM&service_id=ID
func (s *Server) handleLaneSlots(w http.ResponseWriter, r *http.Request) {
	laneID := r.PathValue("lane")
	q := r.URL.Query()
	day, err := s.parseDay(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var start *time.Time
	if v := q.Get("start"); v != "" {
		c, err := timewindow.ParseClock(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
			return
		}
		t := c.On(timewindow.DateOf(day), day.Location())
		start = &t
	}

	snap, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	lane, err := snap.Lane(laneID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	slotMinutes := lane.Schedule.SlotDuration
	if slotMinutes <= 0 {
		slotMinutes = 30
	}
	needed := 1
	if id := q.Get("service_id"); id != "" {
		svc, err := snap.Service(id)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		needed = slots.SlotsNeeded(svc.DurationMinutes, slotMinutes)
	}

	resp := SlotsResponse{
		LaneID:      laneID,
		Date:        day.Format("2006-01-02"),
		Slots:       []slots.SlotInfo{},
		FreeWindows: []slots.FreeWindow{},
	}
	if cal := s.currentCalendar(); cal != nil {
		if holiday, _ := cal.IsHoliday(day); holiday {
			resp.Closed, resp.Reason = true, "holiday"
		} else if cal.IsDayOff(day.Weekday()) {
			resp.Closed, resp.Reason = true, "day_off"
		}
	}
	if !resp.Closed && (lane.Schedule.IsClosed || !lane.IsActive) {
		resp.Closed, resp.Reason = true, "closed"
	}

	var grid []slots.Slot
	if !resp.Closed {
		if grid, err = s.slots.GenerateSlots(r.Context(), laneID, day, lane.Schedule); err != nil {
			s.writeFailure(w, r, err)
			return
		}
		resp.Slots = slots.ToSlotInfo(grid)
		if windows := slots.FreeWindows(grid); windows != nil {
			resp.FreeWindows = windows
		}
	}
	if start != nil {
		check := slots.CheckStart(grid, *start, needed)
		resp.StartCheck = &check
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateBlock blocks a lane for an interval.
// POST /api/lanes/{lane}/blocks
func (s *Server) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.CreateLaneBlock(r.Context(), lanes.LaneBlock{
		LaneID:   r.PathValue("lane"),
		CenterID: req.CenterID,
		Start:    req.Start,
		End:      req.End,
		Reason:   req.Reason,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.BlockCreated, Subject: created.ID, Attrs: map[string]any{"lane": created.LaneID}})
	s.logger.Info().Str("block", created.ID).Str("lane", created.LaneID).Msg("lane block created")
	writeJSON(w, http.StatusCreated, created)
}

// handleReplaceBlock edits a block. The result carries a new id.
// PUT /api/blocks/{id}
func (s *Server) handleReplaceBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetLaneBlock(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	b := lanes.LaneBlock{
		LaneID:   existing.LaneID,
		CenterID: existing.CenterID,
		Start:    req.Start,
		End:      req.End,
		Reason:   req.Reason,
	}
	if req.LaneID != "" {
		b.LaneID = req.LaneID
	}
	if req.CenterID != "" {
		b.CenterID = req.CenterID
	}

	replaced, err := s.store.ReplaceLaneBlock(r.Context(), id, b)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.BlockReplaced, Subject: replaced.ID, Previous: id, Attrs: map[string]any{"lane": replaced.LaneID}})
	s.logger.Info().Str("old", id).Str("block", replaced.ID).Msg("lane block replaced")
	writeJSON(w, http.StatusOK, replaced)
}

// handleDeleteBlock removes a block.
// DELETE /api/blocks/{id}
func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteLaneBlock(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.changed(r, events.Event{Type: events.BlockDeleted, Subject: id})
	s.logger.Info().Str("block", id).Msg("lane block deleted")
	w.WriteHeader(http.StatusNoContent)
}
