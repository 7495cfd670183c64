package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"nook/internal/promotions"
	"nook/internal/timewindow"
)

// CenterConfig is one physical location.
type CenterConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	IsActive bool   `yaml:"is_active"`
}

// ScheduleConfig holds a lane's working hours.
type ScheduleConfig struct {
	StartTime           string `yaml:"start_time"`            // "10:00"
	EndTime             string `yaml:"end_time"`              // "21:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 30
	BreakStart          string `yaml:"break_start,omitempty"`
	BreakEnd            string `yaml:"break_end,omitempty"`
}

// LaneConfig is a treatment room or table at a center.
type LaneConfig struct {
	ID       string          `yaml:"id"`
	CenterID string          `yaml:"center_id"`
	Name     string          `yaml:"name"`
	IsActive bool            `yaml:"is_active"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ServiceConfig is a bookable treatment with its list price.
type ServiceConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	BasePriceCents  int64  `yaml:"base_price_cents"`
	DurationMinutes int    `yaml:"duration_minutes"`
	IsActive        bool   `yaml:"is_active"`
}

// PromotionConfig is the YAML form of a promotion rule.
type PromotionConfig struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Kind           string `yaml:"kind" json:"kind"`                                             // percentage | fixed_amount | happy_hour
	HappyHourModel string `yaml:"happy_hour_model,omitempty" json:"happy_hour_model,omitempty"` // percentage | fixed_amount
	Value          int64  `yaml:"value" json:"value"`
	Scope          string `yaml:"scope" json:"scope"` // all_services | specific_service | specific_center
	TargetID       string `yaml:"target_id,omitempty" json:"target_id,omitempty"`
	StartDate      string `yaml:"start_date,omitempty" json:"start_date,omitempty"` // "2024-01-01"
	EndDate        string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	StartTime      string `yaml:"start_time,omitempty" json:"start_time,omitempty"` // "16:00"
	EndTime        string `yaml:"end_time,omitempty" json:"end_time,omitempty"`
	DaysOfWeek     []int  `yaml:"days_of_week,omitempty" json:"days_of_week,omitempty"` // 0=Sun .. 6=Sat
	IsActive       bool   `yaml:"is_active" json:"is_active"`
}

// HolidayConfig closes every lane for a date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2024-12-25"
	Name string `yaml:"name"`
}

// DefaultsConfig is applied to lanes without their own settings.
type DefaultsConfig struct {
	Schedule *ScheduleConfig `yaml:"schedule"`
	DaysOff  []int           `yaml:"days_off"` // 0=Sun .. 6=Sat
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Centers    []CenterConfig    `yaml:"centers"`
	Lanes      []LaneConfig      `yaml:"lanes"`
	Services   []ServiceConfig   `yaml:"services"`
	Promotions []PromotionConfig `yaml:"promotions"`
	Defaults   DefaultsConfig    `yaml:"defaults"`
	Holidays   []HolidayConfig   `yaml:"holidays"`
}

// LoadCatalog loads and validates catalog.yaml.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cat.applyDefaults()

	return &cat, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Centers) == 0 {
		return fmt.Errorf("no centers defined")
	}

	centers := make(map[string]bool)
	for i, ctr := range c.Centers {
		if ctr.ID == "" {
			return fmt.Errorf("centers[%d]: id is required", i)
		}
		if centers[ctr.ID] {
			return fmt.Errorf("centers[%d]: duplicate id '%s'", i, ctr.ID)
		}
		centers[ctr.ID] = true
		if ctr.Name == "" {
			return fmt.Errorf("centers[%d]: name is required", i)
		}
	}

	laneIDs := make(map[string]bool)
	for i, lane := range c.Lanes {
		if lane.ID == "" {
			return fmt.Errorf("lanes[%d]: id is required", i)
		}
		if laneIDs[lane.ID] {
			return fmt.Errorf("lanes[%d]: duplicate id '%s'", i, lane.ID)
		}
		laneIDs[lane.ID] = true
		if !centers[lane.CenterID] {
			return fmt.Errorf("lanes[%d]: unknown center_id '%s'", i, lane.CenterID)
		}
		if lane.Schedule != nil {
			if err := validateSchedule(lane.Schedule, fmt.Sprintf("lanes[%d].schedule", i)); err != nil {
				return err
			}
		}
	}

	services := make(map[string]bool)
	for i, svc := range c.Services {
		if svc.ID == "" {
			return fmt.Errorf("services[%d]: id is required", i)
		}
		if services[svc.ID] {
			return fmt.Errorf("services[%d]: duplicate id '%s'", i, svc.ID)
		}
		services[svc.ID] = true
		if svc.BasePriceCents < 0 {
			return fmt.Errorf("services[%d].base_price_cents: cannot be negative", i)
		}
		if svc.DurationMinutes < 0 {
			return fmt.Errorf("services[%d].duration_minutes: cannot be negative", i)
		}
	}

	promoIDs := make(map[string]bool)
	for i, p := range c.Promotions {
		if p.ID == "" {
			return fmt.Errorf("promotions[%d]: id is required", i)
		}
		if promoIDs[p.ID] {
			return fmt.Errorf("promotions[%d]: duplicate id '%s'", i, p.ID)
		}
		promoIDs[p.ID] = true

		rule, err := p.Rule()
		if err != nil {
			return fmt.Errorf("promotions[%d]: %w", i, err)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("promotions[%d]: %w", i, err)
		}
		switch rule.Scope {
		case promotions.ScopeSpecificService:
			if !services[rule.TargetID] {
				return fmt.Errorf("promotions[%d].target_id: unknown service '%s'", i, rule.TargetID)
			}
		case promotions.ScopeSpecificCenter:
			if !centers[rule.TargetID] {
				return fmt.Errorf("promotions[%d].target_id: unknown center '%s'", i, rule.TargetID)
			}
		}
	}

	if c.Defaults.Schedule != nil {
		if err := validateSchedule(c.Defaults.Schedule, "defaults.schedule"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holidays[%d]: date is required", i)
		}
		if _, err := timewindow.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holidays[%d]: %w", i, err)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 0 || d > 6 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 0-6 (0=Sun, 6=Sat)", i, d)
		}
	}

	return nil
}

func validateSchedule(s *ScheduleConfig, prefix string) error {
	if s.StartTime == "" {
		return fmt.Errorf("%s.start_time is required", prefix)
	}
	if s.EndTime == "" {
		return fmt.Errorf("%s.end_time is required", prefix)
	}

	startTime, err := timewindow.ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("%s.start_time: %w", prefix, err)
	}
	endTime, err := timewindow.ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("%s.end_time: %w", prefix, err)
	}
	if !endTime.After(startTime) {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}

	if s.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%s.slot_duration_minutes must be positive", prefix)
	}

	if s.BreakStart != "" && s.BreakEnd != "" {
		breakStart, err := timewindow.ParseClock(s.BreakStart)
		if err != nil {
			return fmt.Errorf("%s.break_start: %w", prefix, err)
		}
		breakEnd, err := timewindow.ParseClock(s.BreakEnd)
		if err != nil {
			return fmt.Errorf("%s.break_end: %w", prefix, err)
		}
		if !breakEnd.After(breakStart) {
			return fmt.Errorf("%s: break_end must be after break_start", prefix)
		}
		if breakStart.Before(startTime) || breakEnd.After(endTime) {
			return fmt.Errorf("%s: break must be within working hours", prefix)
		}
	}

	return nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Lanes {
		if c.Lanes[i].Schedule == nil && c.Defaults.Schedule != nil {
			c.Lanes[i].Schedule = c.Defaults.Schedule
		}
	}
}

// Rule converts the YAML entry into a promotion rule. Field parse errors
// carry the field name; semantic checks are left to Rule.Validate.
func (p PromotionConfig) Rule() (promotions.Rule, error) {
	kind, err := promotions.ParseKind(p.Kind)
	if err != nil {
		return promotions.Rule{}, fmt.Errorf("kind: %w", err)
	}
	scope, err := promotions.ParseScope(p.Scope)
	if err != nil {
		return promotions.Rule{}, fmt.Errorf("scope: %w", err)
	}

	r := promotions.Rule{
		ID:       p.ID,
		Name:     p.Name,
		Kind:     kind,
		Value:    p.Value,
		Scope:    scope,
		TargetID: p.TargetID,
		IsActive: p.IsActive,
	}
	if p.HappyHourModel != "" {
		if r.HappyHourModel, err = promotions.ParseKind(p.HappyHourModel); err != nil {
			return promotions.Rule{}, fmt.Errorf("happy_hour_model: %w", err)
		}
	}

	fields := []struct {
		name  string
		value string
		date  *timewindow.Date
		clock *timewindow.Clock
	}{
		{name: "start_date", value: p.StartDate, date: &r.Window.Dates.Start},
		{name: "end_date", value: p.EndDate, date: &r.Window.Dates.End},
		{name: "start_time", value: p.StartTime, clock: &r.Window.Times.Start},
		{name: "end_time", value: p.EndTime, clock: &r.Window.Times.End},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if f.date != nil {
			if *f.date, err = timewindow.ParseDate(f.value); err != nil {
				return promotions.Rule{}, fmt.Errorf("%s: %w", f.name, err)
			}
			continue
		}
		if *f.clock, err = timewindow.ParseClock(f.value); err != nil {
			return promotions.Rule{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	for _, d := range p.DaysOfWeek {
		r.Window.Weekdays = append(r.Window.Weekdays, time.Weekday(d))
	}

	return r, nil
}

// IsHoliday checks if a date is a holiday.
func (c *Catalog) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(timewindow.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// IsDayOff checks if a weekday is a day off.
func (c *Catalog) IsDayOff(weekday time.Weekday) bool {
	for _, d := range c.Defaults.DaysOff {
		if time.Weekday(d) == weekday {
			return true
		}
	}
	return false
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	active := 0
	for _, p := range c.Promotions {
		if p.IsActive {
			active++
		}
	}
	return fmt.Sprintf("Catalog: %d centers, %d lanes, %d services, %d promotions (%d active), %d holidays",
		len(c.Centers), len(c.Lanes), len(c.Services), len(c.Promotions), active, len(c.Holidays))
}
