// Package promotions evaluates discount rules against a base price.
//
// Every function here is pure: the catalog and the instant are passed in by
// the caller and nothing is mutated.
package promotions

import (
	"errors"
	"fmt"
	"time"

	"nook/internal/timewindow"
)

// DiscountKind is the pricing model of a rule.
type DiscountKind int

const (
	KindUnknown DiscountKind = iota
	KindPercentage
	KindFixedAmount
	// KindHappyHour is a time-gated label over Percentage or FixedAmount.
	KindHappyHour
)

var kindNames = map[DiscountKind]string{
	KindPercentage:  "percentage",
	KindFixedAmount: "fixed_amount",
	KindHappyHour:   "happy_hour",
}

func (k DiscountKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps the stored name back to a kind.
func ParseKind(s string) (DiscountKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown discount kind %q", s)
}

func (k DiscountKind) MarshalText() ([]byte, error) {
	if k == KindUnknown {
		return []byte{}, nil
	}
	return []byte(k.String()), nil
}

func (k *DiscountKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = KindUnknown
		return nil
	}
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Scope says which bookings a rule targets.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeAllServices
	ScopeSpecificService
	ScopeSpecificCenter
)

var scopeNames = map[Scope]string{
	ScopeAllServices:     "all_services",
	ScopeSpecificService: "specific_service",
	ScopeSpecificCenter:  "specific_center",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseScope maps the stored name back to a scope.
func ParseScope(s string) (Scope, error) {
	for sc, name := range scopeNames {
		if name == s {
			return sc, nil
		}
	}
	return ScopeUnknown, fmt.Errorf("unknown scope %q", s)
}

func (s Scope) MarshalText() ([]byte, error) {
	if s == ScopeUnknown {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ScopeUnknown
		return nil
	}
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Rule is a single promotion.
type Rule struct {
	ID   string       `json:"id"`
	Name string       `json:"name,omitempty"`
	Kind DiscountKind `json:"kind"`
	// HappyHourModel is the numeric model a happy hour wraps. Zero means
	// percentage.
	HappyHourModel DiscountKind `json:"happy_hour_model,omitzero"`
	// Value is percentage points for percentage rules, cents for fixed ones.
	Value    int64             `json:"value"`
	Scope    Scope             `json:"scope"`
	TargetID string            `json:"target_id,omitempty"`
	Window   timewindow.Window `json:"window,omitzero"`
	IsActive bool              `json:"is_active"`
}

// Model returns the numeric model used to compute the discount.
func (r Rule) Model() DiscountKind {
	if r.Kind != KindHappyHour {
		return r.Kind
	}
	if r.HappyHourModel == KindFixedAmount {
		return KindFixedAmount
	}
	return KindPercentage
}

// IsCurrentlyApplicable reports whether the rule is switched on and its
// window is open at now.
func (r Rule) IsCurrentlyApplicable(now time.Time) bool {
	return r.IsActive && r.Window.IsActive(now)
}

var (
	ErrInvalidValue  = errors.New("promotions: invalid value")
	ErrInvalidKind   = errors.New("promotions: invalid kind")
	ErrInvalidScope  = errors.New("promotions: invalid scope")
	ErrMissingTarget = errors.New("promotions: target id required")
	ErrInvalidWindow = errors.New("promotions: invalid window")
)

// Validate checks the rule at creation time. Evaluation never calls it.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindPercentage, KindFixedAmount, KindHappyHour:
	default:
		return ErrInvalidKind
	}
	if r.Kind == KindHappyHour && r.HappyHourModel != KindUnknown &&
		r.HappyHourModel != KindPercentage && r.HappyHourModel != KindFixedAmount {
		return fmt.Errorf("%w: happy hour must wrap percentage or fixed_amount", ErrInvalidKind)
	}

	switch r.Model() {
	case KindPercentage:
		if r.Value < 0 || r.Value > 100 {
			return fmt.Errorf("%w: percentage %d outside 0..100", ErrInvalidValue, r.Value)
		}
	case KindFixedAmount:
		if r.Value < 0 {
			return fmt.Errorf("%w: negative amount %d", ErrInvalidValue, r.Value)
		}
	}

	switch r.Scope {
	case ScopeAllServices:
	case ScopeSpecificService, ScopeSpecificCenter:
		if r.TargetID == "" {
			return ErrMissingTarget
		}
	default:
		return ErrInvalidScope
	}

	w := r.Window
	if !w.Dates.Start.IsZero() && !w.Dates.End.IsZero() && w.Dates.End.Compare(w.Dates.Start) < 0 {
		return fmt.Errorf("%w: end date before start date", ErrInvalidWindow)
	}
	if !w.Times.Start.IsZero() && !w.Times.End.IsZero() && w.Times.End.Before(w.Times.Start) {
		return fmt.Errorf("%w: end time before start time", ErrInvalidWindow)
	}
	for _, d := range w.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d outside 0..6", ErrInvalidWindow, d)
		}
	}
	if r.Kind == KindHappyHour && !w.HasTimeOfDay() {
		return fmt.Errorf("%w: happy hour needs a time of day", ErrInvalidWindow)
	}
	return nil
}
