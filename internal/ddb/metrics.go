package ddb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus metrics exported by the DDB (SPEC_FULL.md
// §4.10). It is nil-safe: every Recorder method returns early on a nil
// receiver, so a DDB built without a Recorder behaves identically, the way
// the teacher's watcher.metrics structs are only instantiated when a vecs
// bundle is registered (controller/api/destination/watcher/prometheus.go).
type Recorder struct {
	pdpQueueDepth      prometheus.Gauge
	edpQueueDepth      prometheus.Gauge
	dirtyTopics        prometheus.Gauge
	changesReleased    prometheus.Counter
	disposalsForwarded prometheus.Counter
	updatesDropped     *prometheus.CounterVec
}

// NewRecorder registers the DDB's metrics against reg, grounded on the
// promauto + GaugeVec/CounterVec idiom of
// controller/api/destination/watcher/prometheus.go.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		pdpQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddb_pdp_queue_depth",
			Help: "Number of items awaiting drain on the PDP inbound queue.",
		}),
		edpQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddb_edp_queue_depth",
			Help: "Number of items awaiting drain on the EDP inbound queue.",
		}),
		dirtyTopics: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddb_dirty_topics",
			Help: "Number of topics pending reconciliation.",
		}),
		changesReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "ddb_changes_released_total",
			Help: "Total CacheChange pointers returned to the transport pool.",
		}),
		disposalsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ddb_disposals_forwarded_total",
			Help: "Total DATA(Up|Uw|Ur) disposals appended to the disposal list.",
		}),
		updatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddb_updates_dropped_total",
			Help: "Total updates dropped, labeled by error reason.",
		}, []string{"reason"}),
	}
}

func (r *Recorder) observeQueues(pdp, edp int) {
	if r == nil {
		return
	}
	r.pdpQueueDepth.Set(float64(pdp))
	r.edpQueueDepth.Set(float64(edp))
}

func (r *Recorder) observeDirtyTopics(n int) {
	if r == nil {
		return
	}
	r.dirtyTopics.Set(float64(n))
}

func (r *Recorder) changeReleased() {
	if r == nil {
		return
	}
	r.changesReleased.Inc()
}

func (r *Recorder) disposalForwarded() {
	if r == nil {
		return
	}
	r.disposalsForwarded.Inc()
}

// UpdatesDropped increments the drop counter for reason. Exported so the
// errors.go fail() helper (which lives in the same package) and external
// callers that construct their own drop paths can share one counter.
func (r *Recorder) UpdatesDropped(reason string) {
	if r == nil {
		return
	}
	r.updatesDropped.WithLabelValues(reason).Inc()
}
