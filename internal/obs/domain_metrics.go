package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics counts booking engine events.
type DomainMetrics struct {
	// Quotes counts computed quotes by source (draft, stateless).
	Quotes *prometheus.CounterVec
	// CouponSelections counts coupon selection attempts by result.
	CouponSelections *prometheus.CounterVec
	// CouponRevocations counts coupons cleared because the subtotal fell below their minimum.
	CouponRevocations prometheus.Counter
	// Submissions counts booking submissions by mode and result.
	Submissions *prometheus.CounterVec
	// Drafts counts draft lifecycle operations.
	Drafts *prometheus.CounterVec
}

var (
	domainOnce    sync.Once
	domainMetrics *DomainMetrics
)

// MustRegisterDomainMetrics initialises and registers the domain collectors.
// Later calls return the collectors created by the first one.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	domainOnce.Do(func() {
		domainMetrics = NewDomainMetrics(namespace, reg)
	})
	return domainMetrics
}

// NewDomainMetrics registers a fresh set of domain collectors on reg.
func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &DomainMetrics{
		Quotes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of computed price quotes.",
		}, []string{"source"})),
		CouponSelections: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_selections_total",
			Help:      "Count of coupon selection attempts by outcome.",
		}, []string{"result"})),
		CouponRevocations: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_revocations_total",
			Help:      "Count of coupons cleared after the order total fell below their minimum.",
		})),
		Submissions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Count of booking submissions by mode and outcome.",
		}, []string{"mode", "result"})),
		Drafts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_operations_total",
			Help:      "Count of draft operations by kind.",
		}, []string{"operation"})),
	}
}
