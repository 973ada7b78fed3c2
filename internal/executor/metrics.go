package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codequest",
		Subsystem: "executor",
		Name:      "running",
		Help:      "Number of sandboxed runs currently executing.",
	})
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codequest",
		Subsystem: "executor",
		Name:      "queue_depth",
		Help:      "Number of runs waiting for a pool slot.",
	})
	metricBusyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequest",
		Subsystem: "executor",
		Name:      "busy_rejections_total",
		Help:      "Runs rejected because the pool queue was saturated.",
	})
	metricRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codequest",
		Subsystem: "executor",
		Name:      "runs_total",
		Help:      "Completed sandboxed runs by terminal status.",
	}, []string{"status"})
)
