package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_queue_pending",
		Help: "Number of queue items awaiting submission",
	})
	failedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_queue_failed",
		Help: "Number of queue items parked after exhausting retries",
	})
	attemptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_submit_attempts_total",
		Help: "Submission attempts by mutation kind and outcome",
	}, []string{"kind", "outcome"})
	persistErrCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldsync_persist_errors_total",
		Help: "Queue snapshot writes that failed and were swallowed",
	})
)

type prometheusObserver struct{}

func NewPrometheusObserver() QueueObserver {
	return &prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) SetQueueDepth(pending, failed int) {
	pendingGauge.Set(float64(pending))
	failedGauge.Set(float64(failed))
}

func (p *prometheusObserver) RecordAttempt(kind string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	attemptCounter.WithLabelValues(kind, outcome).Inc()
}

func (p *prometheusObserver) RecordPersistError() {
	persistErrCounter.Inc()
}
