package promotions

import "time"

// PriceBreakdown is the result of applying at most one promotion.
type PriceBreakdown struct {
	OriginalPrice     int64  `json:"original_price"`
	FinalPrice        int64  `json:"final_price"`
	Discount          int64  `json:"discount"`
	AppliedPromotions []Rule `json:"-"`
}

// Applied returns the winning rule, if any.
func (b PriceBreakdown) Applied() (Rule, bool) {
	if len(b.AppliedPromotions) == 0 {
		return Rule{}, false
	}
	return b.AppliedPromotions[0], true
}

// Applicable returns the rules of catalog that are switched on, open at now
// and target the given service or center. Empty ids never match a targeted
// rule. Catalog order is kept.
func Applicable(catalog []Rule, now time.Time, serviceID, centerID string) []Rule {
	out := make([]Rule, 0, len(catalog))
	for _, r := range catalog {
		if !r.IsActive {
			continue
		}
		if !r.Window.IsActive(now) {
			continue
		}
		if targets(r, serviceID, centerID) {
			out = append(out, r)
		}
	}
	return out
}

func targets(r Rule, serviceID, centerID string) bool {
	switch r.Scope {
	case ScopeAllServices:
		return true
	case ScopeSpecificService:
		return serviceID != "" && r.TargetID == serviceID
	case ScopeSpecificCenter:
		return centerID != "" && r.TargetID == centerID
	default:
		return false
	}
}

// DiscountFor returns the discount of r on basePrice in cents. The result is
// always within [0, basePrice]; a malformed rule contributes nothing.
func DiscountFor(r Rule, basePrice int64) int64 {
	if basePrice <= 0 || r.Value <= 0 {
		return 0
	}

	var d int64
	switch r.Model() {
	case KindPercentage:
		pct := min(r.Value, 100)
		// Split base so the product cannot overflow; the result still floors.
		d = basePrice/100*pct + basePrice%100*pct/100
	case KindFixedAmount:
		d = r.Value
	default:
		return 0
	}

	return max(0, min(d, basePrice))
}

// PriceWithBestPromotion picks the single rule with the largest discount.
// Ties go to the rule seen first. Discounts never stack.
func PriceWithBestPromotion(basePrice int64, rules []Rule) PriceBreakdown {
	b := PriceBreakdown{OriginalPrice: basePrice, FinalPrice: basePrice}
	if len(rules) == 0 {
		return b
	}

	best := -1
	var max int64
	for i, r := range rules {
		d := DiscountFor(r, basePrice)
		if best < 0 || d > max {
			best, max = i, d
		}
	}

	b.Discount = max
	b.FinalPrice = basePrice - max
	b.AppliedPromotions = []Rule{rules[best]}
	return b
}

// Quote filters catalog for the target at now and prices basePrice with the
// best remaining rule.
func Quote(catalog []Rule, now time.Time, basePrice int64, serviceID, centerID string) PriceBreakdown {
	return PriceWithBestPromotion(basePrice, Applicable(catalog, now, serviceID, centerID))
}
