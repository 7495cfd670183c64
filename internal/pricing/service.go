// Package pricing quotes bookings against the current promotion catalog.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nook/internal/catalog"
	"nook/internal/lanes"
	"nook/internal/metrics"
	"nook/internal/promotions"
)

// Snapshotter yields the current catalog.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// QuoteRequest asks for the price of a service at a center.
type QuoteRequest struct {
	ServiceID string
	CenterID  string
	// At is the booking instant. Zero means now.
	At time.Time
	// BasePrice overrides the catalog list price when set.
	BasePrice *int64
}

// Quote is a priced request.
type Quote struct {
	promotions.PriceBreakdown
	ServiceID string           `json:"service_id"`
	CenterID  string           `json:"center_id,omitempty"`
	At        time.Time        `json:"at"`
	Promotion *promotions.Rule `json:"promotion,omitempty"`
}

// Service prices requests in the business timezone.
type Service struct {
	catalog Snapshotter
	loc     *time.Location
	now     func() time.Time
	logger  *zerolog.Logger
}

// NewService creates a pricing service. loc is the business timezone; now
// defaults to time.Now.
func NewService(cat Snapshotter, loc *time.Location, now func() time.Time, logger *zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{catalog: cat, loc: loc, now: now, logger: logger}
}

// Location returns the business timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current instant in the business timezone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

func (s *Service) instant(at time.Time) time.Time {
	if at.IsZero() {
		return s.Now()
	}
	return at.In(s.loc)
}

// Quote prices req with the best applicable promotion.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("catalog: %w", err)
	}

	var base int64
	if req.BasePrice != nil {
		base = *req.BasePrice
	} else {
		svc, err := snap.Service(req.ServiceID)
		if err != nil {
			return Quote{}, err
		}
		base = svc.BasePriceCents
	}

	at := s.instant(req.At)
	b := promotions.Quote(snap.Promotions, at, base, req.ServiceID, req.CenterID)
	metrics.ObserveQuote(b.Discount)

	q := Quote{PriceBreakdown: b, ServiceID: req.ServiceID, CenterID: req.CenterID, At: at}
	if r, ok := b.Applied(); ok {
		q.Promotion = &r
	}

	s.logger.Debug().
		Str("service", req.ServiceID).
		Str("center", req.CenterID).
		Int64("base", b.OriginalPrice).
		Int64("discount", b.Discount).
		Msg("quote")
	return q, nil
}

// Applicable lists the promotions open for a service and center at at, for
// badge display.
func (s *Service) Applicable(ctx context.Context, serviceID, centerID string, at time.Time) ([]promotions.Rule, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return promotions.Applicable(snap.Promotions, s.instant(at), serviceID, centerID), nil
}

// BlockAt returns the block covering laneID at at, or nil.
func (s *Service) BlockAt(ctx context.Context, laneID string, at time.Time) (*lanes.LaneBlock, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	b := lanes.IsBlocked(laneID, s.instant(at), snap.Blocks)
	metrics.IncBlockCheck(b != nil)
	return b, nil
}

// BlocksOn returns the blocks of laneID touching the business-timezone day
// of day.
func (s *Service) BlocksOn(ctx context.Context, laneID string, day time.Time) ([]lanes.LaneBlock, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return lanes.BlocksOverlappingDay(laneID, day.In(s.loc), snap.Blocks), nil
}
