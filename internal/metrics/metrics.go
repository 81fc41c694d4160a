// Package metrics exposes per-worker counters and gauges on a
// Prometheus HTTP listener, bound to PAYCALC_METRICS_ADDR.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethereum/go-ethereum/log"
)

// WorkerMetrics is the counter/gauge set every worker registers one of,
// labeled by its own component name.
type WorkerMetrics struct {
	Ticks       prometheus.Counter
	Errors      prometheus.Counter
	Apportioned prometheus.Counter // msat credited to work records
	OpenReqs    prometheus.Gauge
}

var (
	registryMu sync.Mutex
	registry   = map[string]*WorkerMetrics{}
)

// ForComponent registers (or returns the already-registered) metric set
// for a worker name, under the default Prometheus registry. Safe to call
// more than once for the same name: callers like engine.New are invoked
// repeatedly in tests, and promauto.NewCounter would otherwise panic on
// the second registration of the same fully-qualified metric name.
func ForComponent(name string) *WorkerMetrics {
	registryMu.Lock()
	defer registryMu.Unlock()
	if m, ok := registry[name]; ok {
		return m
	}
	m := newWorkerMetrics(name)
	registry[name] = m
	return m
}

func newWorkerMetrics(name string) *WorkerMetrics {
	return &WorkerMetrics{
		Ticks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "paycalc",
			Subsystem: name,
			Name:      "ticks_total",
			Help:      "Number of iterations run by this worker.",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "paycalc",
			Subsystem: name,
			Name:      "errors_total",
			Help:      "Number of iterations that returned an error.",
		}),
		Apportioned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "paycalc",
			Subsystem: name,
			Name:      "apportioned_msat_total",
			Help:      "Millisatoshi credited to work records by the accounting engine.",
		}),
		OpenReqs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "paycalc",
			Subsystem: name,
			Name:      "open_pay_requests",
			Help:      "Pay requests without a terminal payment.",
		}),
	}
}

// Serve starts the /metrics HTTP listener on addr and blocks until ctx
// is cancelled. A no-op if addr is empty.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	logger := log.New("component", "metrics")
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("metrics listener starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics listener stopped", "err", err)
	}
}
