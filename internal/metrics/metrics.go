package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nook"

var (
	once sync.Once

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of price quotes by outcome.",
		},
		[]string{"outcome"},
	)

	discountCents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_cents_total",
			Help:      "Sum of discounts granted in quotes, in cents.",
		},
	)

	blockChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lane_block_checks_total",
			Help:      "Count of lane block checks by result.",
		},
		[]string{"result"},
	)

	catalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_loads_total",
			Help:      "Count of catalog snapshot reads by source.",
		},
		[]string{"source"},
	)

	catalogPromotions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_promotions",
			Help:      "Number of promotions in the current snapshot.",
		},
	)

	catalogChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_changes_total",
			Help:      "Count of catalog writes by event type.",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"route"},
	)
)

// Outcomes of a quote.
const (
	OutcomeDiscounted = "discounted"
	OutcomeFullPrice  = "full_price"
)

// Catalog sources.
const (
	SourceMemory = "memory"
	SourceRedis  = "redis"
	SourceStore  = "store"
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(quotes, discountCents, blockChecks, catalogLoads,
			catalogPromotions, catalogChanges, httpRequests, httpDuration)
	})
}

// ObserveQuote records a priced quote.
func ObserveQuote(discount int64) {
	if discount > 0 {
		quotes.WithLabelValues(OutcomeDiscounted).Inc()
		discountCents.Add(float64(discount))
		return
	}
	quotes.WithLabelValues(OutcomeFullPrice).Inc()
}

func IncBlockCheck(blocked bool) {
	if blocked {
		blockChecks.WithLabelValues("blocked").Inc()
		return
	}
	blockChecks.WithLabelValues("free").Inc()
}

func IncCatalogLoad(source string) {
	catalogLoads.WithLabelValues(source).Inc()
}

func SetCatalogPromotions(n int) {
	catalogPromotions.Set(float64(n))
}

func IncCatalogChange(eventType string) {
	catalogChanges.WithLabelValues(eventType).Inc()
}

func ObserveHTTP(route, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
