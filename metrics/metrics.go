// Package metrics exposes the runtime's waterline and atlas occupancy
// state as Prometheus collectors. It is purely observational: nothing in
// the rest of the module reads a metrics value to make a control-flow
// decision.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the set of gauges/counters updated by the App's main loop
// (waterlines, retained strokes, once per tick) and by the executor (atlas
// occupancy, on each PresentFrame).
type Recorder struct {
	SubmitWaterline        prometheus.Gauge
	ExecutedBatchWaterline prometheus.Gauge
	CompleteWaterline      prometheus.Gauge
	AtlasPagesAllocated    prometheus.Gauge
	AtlasSlotsOccupied     prometheus.Gauge
	RetainedStrokes        prometheus.Gauge
	FeedbackQueueTimeouts  prometheus.Counter
}

// NewRecorder constructs and registers a Recorder against reg. Passing a
// fresh prometheus.NewRegistry() keeps it isolated from the default
// global registry, matching how a library (rather than a standalone
// server) should behave.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		SubmitWaterline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "fabric",
			Name:      "submit_waterline",
			Help:      "Most recently observed submit_waterline value.",
		}),
		ExecutedBatchWaterline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "fabric",
			Name:      "executed_batch_waterline",
			Help:      "Most recently observed executed_batch_waterline value.",
		}),
		CompleteWaterline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "fabric",
			Name:      "complete_waterline",
			Help:      "Most recently observed complete_waterline value.",
		}),
		AtlasPagesAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "atlas",
			Name:      "pages_allocated",
			Help:      "Number of atlas pages currently allocated.",
		}),
		AtlasSlotsOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "atlas",
			Name:      "slots_occupied",
			Help:      "Number of atlas slots currently holding a live tile key.",
		}),
		RetainedStrokes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glaphica",
			Subsystem: "merge",
			Name:      "retained_strokes",
			Help:      "Number of strokes currently held in the retention window.",
		}),
		FeedbackQueueTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glaphica",
			Subsystem: "fabric",
			Name:      "feedback_queue_timeouts_total",
			Help:      "Count of gpu_feedback pushes that exhausted their retry timeout.",
		}),
	}

	reg.MustRegister(
		r.SubmitWaterline,
		r.ExecutedBatchWaterline,
		r.CompleteWaterline,
		r.AtlasPagesAllocated,
		r.AtlasSlotsOccupied,
		r.RetainedStrokes,
		r.FeedbackQueueTimeouts,
	)
	return r
}
