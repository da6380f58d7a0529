// Package metrics implements the optional Prometheus exposition
// SPEC_FULL.md's C15 adds: counters for probe/scan outcomes and a
// histogram of probe latency, served over HTTP when the driver is given a
// listen address via --metrics-addr. This is pure ambient tooling — spec.md
// itself has no metrics surface — added because the pack's
// prometheus/client_golang dependency needs a concrete home and a
// single-process recon tool benefits from the same kind of outcome
// counters zgrab2's scan modules emit per target.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder wraps the Prometheus collectors this tool exposes.
type Recorder struct {
	ProbesTotal   *prometheus.CounterVec
	ScanPortTotal *prometheus.CounterVec
	ProbeDuration prometheus.Histogram

	registry *prometheus.Registry
	server   *http.Server
}

// NewRecorder builds a Recorder with its own registry, so tests can create
// one per case without colliding on the global default registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sshuserenum_probes_total",
			Help: "Total user-enumeration probes, by result.",
		}, []string{"result"}),
		ScanPortTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sshuserenum_scan_ports_total",
			Help: "Total ports scanned, by result tag.",
		}, []string{"result"}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sshuserenum_probe_duration_seconds",
			Help:    "Wall-clock duration of one user-enumeration probe.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
	reg.MustRegister(r.ProbesTotal, r.ScanPortTotal, r.ProbeDuration)
	return r
}

// Serve starts an HTTP listener exposing /metrics on addr. It returns
// immediately; call Shutdown to stop it.
func (r *Recorder) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	r.server = &http.Server{Addr: addr, Handler: mux}
	go func() { _ = r.server.ListenAndServe() }()
	return nil
}

// Shutdown gracefully stops the metrics HTTP server, if one was started.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
