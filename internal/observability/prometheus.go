package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"packflow/internal/saga"
)

// PromObserver exports saga lifecycle events as Prometheus metrics.
type PromObserver struct {
	sagas         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	compensations *prometheus.CounterVec

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewPromObserver registers the collectors with reg and returns the
// observer. Pass prometheus.DefaultRegisterer outside tests.
func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	sagas := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packflow",
		Subsystem: "saga",
		Name:      "runs_total",
		Help:      "Total number of saga runs by outcome.",
	}, []string{"outcome"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "packflow",
		Subsystem: "saga",
		Name:      "stage_duration_ms",
		Help:      "Saga stage latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"stage"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packflow",
		Subsystem: "saga",
		Name:      "stage_errors_total",
		Help:      "Total number of failed saga stages.",
	}, []string{"stage"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packflow",
		Subsystem: "saga",
		Name:      "compensations_total",
		Help:      "Total number of compensation runs by outcome.",
	}, []string{"outcome"})

	reg.MustRegister(sagas, stageDuration, stageErrors, compensations)
	return &PromObserver{
		sagas:         sagas,
		stageDuration: stageDuration,
		stageErrors:   stageErrors,
		compensations: compensations,
		starts:        make(map[string]time.Time),
	}
}

func (o *PromObserver) StageStarted(orderID, txID string, state saga.State) {
	o.mu.Lock()
	o.starts[orderID+"/"+string(state)] = time.Now()
	o.mu.Unlock()
}

func (o *PromObserver) StageFinished(orderID, txID string, state saga.State, err error) {
	key := orderID + "/" + string(state)
	o.mu.Lock()
	start, ok := o.starts[key]
	delete(o.starts, key)
	o.mu.Unlock()

	if ok {
		o.stageDuration.WithLabelValues(string(state)).
			Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		o.stageErrors.WithLabelValues(string(state)).Inc()
	}
}

func (o *PromObserver) CompensationRun(orderID, txID, detail string, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	o.compensations.WithLabelValues(outcome).Inc()
}

func (o *PromObserver) SagaFinished(orderID, txID string, result saga.Result) {
	outcome := "failed"
	if result.Success {
		outcome = "processed"
	}
	o.sagas.WithLabelValues(outcome).Inc()
}

// PromHandler serves the default Prometheus registry.
func PromHandler() http.Handler {
	return promhttp.Handler()
}
