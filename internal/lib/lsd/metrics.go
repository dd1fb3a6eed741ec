package lsd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "rate",
		Help:      "Base asset value of one derivative token",
	}, []string{"pool"})
	promActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "active",
		Help:      "Base asset backing outstanding derivative tokens",
	}, []string{"pool"})
	promLatestEra = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "latest_era",
	}, []string{"pool"})
	promEraStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "era_status",
	}, []string{"pool"})
	promPendingBond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "pending_bond",
	}, []string{"pool"})
	promPendingUnbond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "pending_unbond",
	}, []string{"pool"})
	promTotalPlatformFee = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "lsd",
		Name:      "total_platform_fee",
	}, []string{"pool"})
	promOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "lsd",
		Name:      "operations_total",
	}, []string{"op", "result"})
)

func updatePoolMetrics(sm *StakeManager) {
	pool := sm.Address.String()
	promRate.WithLabelValues(pool).Set(float64(sm.Rate) / float64(CalBase))
	promActive.WithLabelValues(pool).Set(float64(sm.Active) / float64(CalBase))
	promLatestEra.WithLabelValues(pool).Set(float64(sm.LatestEra))
	promEraStatus.WithLabelValues(pool).Set(float64(sm.EraStatus))
	promPendingBond.WithLabelValues(pool).Set(float64(sm.PendingBond) / float64(CalBase))
	promPendingUnbond.WithLabelValues(pool).Set(float64(sm.PendingUnbond) / float64(CalBase))
	promTotalPlatformFee.WithLabelValues(pool).Set(float64(sm.TotalPlatformFee) / float64(CalBase))
}

func countOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	promOperations.WithLabelValues(op, result).Inc()
}
