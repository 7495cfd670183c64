// Package api exposes quoting and lane availability over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nook/internal/catalog"
	"nook/internal/db"
	"nook/internal/events"
	"nook/internal/lanes"
	"nook/internal/metrics"
	"nook/internal/pricing"
	"nook/internal/promotions"
	"nook/internal/slots"
)

// Store is the write side used by admin routes.
type Store interface {
	GetLaneBlock(ctx context.Context, id string) (lanes.LaneBlock, error)
	ListLaneBlocks(ctx context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error)
	CreateLaneBlock(ctx context.Context, b lanes.LaneBlock) (lanes.LaneBlock, error)
	ReplaceLaneBlock(ctx context.Context, id string, b lanes.LaneBlock) (lanes.LaneBlock, error)
	DeleteLaneBlock(ctx context.Context, id string) error
	ListCenterBlocks(ctx context.Context, centerID string) ([]lanes.LaneBlock, error)
	ListCenters(ctx context.Context) ([]db.Center, error)
	GetPromotion(ctx context.Context, id string) (promotions.Rule, error)
	UpsertPromotion(ctx context.Context, r promotions.Rule, source string) error
	SetPromotionActive(ctx context.Context, id string, active bool) error
	DeletePromotion(ctx context.Context, id string) error
}

// Catalog provides snapshots and drops them after writes.
type Catalog interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
	Invalidate(ctx context.Context)
}

// Pricer quotes bookings and answers block lookups.
type Pricer interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (pricing.Quote, error)
	Applicable(ctx context.Context, serviceID, centerID string, at time.Time) ([]promotions.Rule, error)
	BlockAt(ctx context.Context, laneID string, at time.Time) (*lanes.LaneBlock, error)
	BlocksOn(ctx context.Context, laneID string, day time.Time) ([]lanes.LaneBlock, error)
	Location() *time.Location
	Now() time.Time
}

// Calendar tells closed days apart.
type Calendar interface {
	IsHoliday(date time.Time) (bool, string)
	IsDayOff(weekday time.Weekday) bool
}

// Reporter writes the catalog workbook.
type Reporter interface {
	Write(ctx context.Context, w io.Writer) error
}

// Publisher receives change notifications after successful writes.
type Publisher interface {
	Publish(event events.Event)
}

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the HTTP layer.
type Options struct {
	// APIKey, when set, is required in the X-Api-Key header on /api routes.
	APIKey string
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// Ready lists named dependencies checked by /readyz.
	Ready map[string]Pinger
	// Events, when set, is notified of every admin write.
	Events Publisher
}

// Server routes API requests.
type Server struct {
	store   Store
	catalog Catalog
	pricer  Pricer
	reports Reporter
	slots   *slots.Generator
	opts    Options
	limiter *rate.Limiter
	logger  *zerolog.Logger
	mux     *http.ServeMux

	mu       sync.RWMutex
	calendar Calendar
}

// NewServer wires the routes. reports may be nil, which disables the report
// route.
func NewServer(store Store, cat Catalog, pricer Pricer, reports Reporter, opts Options, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{
		store:   store,
		catalog: cat,
		pricer:  pricer,
		reports: reports,
		slots:   slots.NewGenerator(store, pricer.Now),
		opts:    opts,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	s.routes()
	return s
}

// SetCalendar swaps the holiday and day-off source, e.g. after a catalog
// reload.
func (s *Server) SetCalendar(c Calendar) {
	s.mu.Lock()
	s.calendar = c
	s.mu.Unlock()
}

// changed drops the snapshot and announces the write.
func (s *Server) changed(r *http.Request, e events.Event) {
	s.catalog.Invalidate(r.Context())
	if s.opts.Events != nil {
		s.opts.Events.Publish(e)
	}
}

func (s *Server) currentCalendar() Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calendar
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// HealthHandler serves only /healthz and /readyz, for a separate probe port.
func (s *Server) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /readyz", http.HandlerFunc(s.handleReady))
	return mux
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", s.observe("healthz", http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("GET /readyz", s.observe("readyz", http.HandlerFunc(s.handleReady)))

	s.api("POST /api/quote", "quote", s.handleQuote)
	s.api("GET /api/promotions/applicable", "promotions_applicable", s.handleApplicable)
	s.api("GET /api/promotions/{id}", "promotion_get", s.handleGetPromotion)
	s.api("PUT /api/promotions/{id}", "promotion_upsert", s.handleUpsertPromotion)
	s.api("POST /api/promotions/{id}/active", "promotion_active", s.handleSetPromotionActive)
	s.api("DELETE /api/promotions/{id}", "promotion_delete", s.handleDeletePromotion)

	s.api("GET /api/lanes/{lane}/blocked", "lane_blocked", s.handleLaneBlocked)
	s.api("GET /api/lanes/{lane}/blocks", "lane_blocks", s.handleLaneBlocks)
	s.api("POST /api/lanes/{lane}/blocks", "lane_block_create", s.handleCreateBlock)
	s.api("GET /api/lanes/{lane}/slots", "lane_slots", s.handleLaneSlots)
	s.api("PUT /api/blocks/{id}", "block_replace", s.handleReplaceBlock)
	s.api("DELETE /api/blocks/{id}", "block_delete", s.handleDeleteBlock)

	s.api("GET /api/centers", "centers", s.handleCenters)
	s.api("GET /api/centers/{id}/blocks", "center_blocks", s.handleCenterBlocks)

	s.api("POST /api/catalog/refresh", "catalog_refresh", s.handleRefresh)
	s.api("GET /api/reports/catalog", "report_catalog", s.handleReport)
}

func (s *Server) api(pattern, route string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.observe(route, s.authenticate(s.rateLimit(h))))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTP(route, strconv.Itoa(rec.status), time.Since(start))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" && r.Header.Get("X-Api-Key") != s.opts.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, p := range s.opts.Ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// writeFailure maps domain errors to status codes. Unknown errors are
// logged and reported as 500.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, catalog.ErrUnknownService):
		writeError(w, http.StatusNotFound, "unknown service")
	case errors.Is(err, catalog.ErrUnknownLane):
		writeError(w, http.StatusNotFound, "unknown lane")
	case errors.Is(err, db.ErrOwnership):
		writeError(w, http.StatusConflict, "promotion is owned by the catalog file")
	case errors.Is(err, db.ErrInvalidBlock):
		writeError(w, http.StatusBadRequest, "end must be after start")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseInstant reads an RFC 3339 query value; empty means now.
func (s *Server) parseInstant(v string) (time.Time, error) {
	if v == "" {
		return s.pricer.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format; expected RFC 3339")
	}
	return t.In(s.pricer.Location()), nil
}

// parseDay reads a YYYY-MM-DD query value as midnight in the business
// timezone; empty means today.
func (s *Server) parseDay(v string) (time.Time, error) {
	loc := s.pricer.Location()
	if v == "" {
		now := s.pricer.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}
