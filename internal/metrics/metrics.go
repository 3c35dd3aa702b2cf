// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records per-stage parcel counts and timings of an
// extraction run in Prometheus form. A batch tool has no scrape endpoint,
// so the registry is written to a node_exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/zone-extract/pkg/types"
)

// Recorder implements the pipeline observer on a private registry.
type Recorder struct {
	reg      *prometheus.Registry
	parcels  *prometheus.GaugeVec
	duration *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	info     *prometheus.GaugeVec
}

// New returns a Recorder with its own registry and the build info gauge set
// for version.
func New(version string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	r := &Recorder{
		reg: reg,
		parcels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zone_extract_parcels",
			Help: "Parcels remaining after each pipeline stage.",
		}, []string{"stage"}),
		duration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zone_extract_stage_duration_seconds",
			Help: "Wall time spent in each pipeline stage.",
		}, []string{"stage"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_extract_runs_total",
			Help: "Extraction runs by outcome.",
		}, []string{"outcome"}),
		info: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zone_extract_build_info",
			Help: "Build information for the binary.",
		}, []string{"version"}),
	}
	r.info.WithLabelValues(version).Set(1)
	return r
}

// Observe records a stage event.
func (r *Recorder) Observe(ev types.StageEvent) {
	stage := string(ev.Stage)
	r.parcels.WithLabelValues(stage).Set(float64(ev.Count))
	r.duration.WithLabelValues(stage).Set(ev.Elapsed.Seconds())
}

// RunFinished counts the run as succeeded or failed.
func (r *Recorder) RunFinished(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes the registry in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
