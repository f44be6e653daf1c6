package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quotaDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "football_quota_decisions_total",
		Help: "Admission decisions by deciding window and result",
	}, []string{"window", "result"})

	trackedCallers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "football_quota_tracked_callers",
		Help: "Callers held by the in-process limiter after the last cleanup",
	})
)

func observeDecision(d Decision) {
	result := "denied"
	if d.Allowed {
		result = "allowed"
	}
	quotaDecisionsTotal.WithLabelValues(d.Window.String(), result).Inc()
}
