package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DetectTotal counts preview evaluations by outcome.
	DetectTotal *prometheus.CounterVec
	// FinalizeTotal counts finalize commits by outcome.
	FinalizeTotal *prometheus.CounterVec
	// UsageConflictTotal counts applications dropped because a rule's
	// usage cap was consumed by a concurrent sale.
	UsageConflictTotal prometheus.Counter
	// ApplicationsPerCart observes how many promotions fired per evaluation.
	ApplicationsPerCart prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers promotion-domain
// Prometheus collectors. Safe to call more than once.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DetectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_detect_total",
			Help:      "Count of promotion preview evaluations by result.",
		}, []string{"result"})
		FinalizeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_finalize_total",
			Help:      "Count of promotion finalize commits by result.",
		}, []string{"result"})
		UsageConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_usage_conflict_total",
			Help:      "Applications dropped at commit because the usage cap lost a race.",
		})
		ApplicationsPerCart = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "promo_applications_per_cart",
			Help:      "Number of discount applications produced per evaluation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		})
		reg.MustRegister(DetectTotal, FinalizeTotal, UsageConflictTotal, ApplicationsPerCart)
	})
}
