package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exposes metric events as Prometheus collectors.
type PrometheusRecorder struct {
	keyOperations    *prometheus.CounterVec
	keyValidations   *prometheus.CounterVec
	identityCacheOps *prometheus.CounterVec
	userUpserts      prometheus.Counter
}

// NewPrometheus creates a Recorder registered against reg. Passing nil
// registers against the default registry.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		keyOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dandi_api_key_operations_total",
			Help: "Total number of API key lifecycle operations",
		}, []string{"operation"}),
		keyValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dandi_api_key_validations_total",
			Help: "Total number of API key validation attempts by outcome",
		}, []string{"result"}),
		identityCacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dandi_identity_cache_operations_total",
			Help: "Total number of identity cache hits and misses",
		}, []string{"result"}),
		userUpserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dandi_user_upserts_total",
			Help: "Total number of login-triggered user upserts",
		}),
	}
}

// IncKeyCreated increments the create counter.
func (p *PrometheusRecorder) IncKeyCreated() {
	p.keyOperations.WithLabelValues("create").Inc()
}

// IncKeyUpdated increments the update counter.
func (p *PrometheusRecorder) IncKeyUpdated() {
	p.keyOperations.WithLabelValues("update").Inc()
}

// IncKeyDeleted increments the delete counter.
func (p *PrometheusRecorder) IncKeyDeleted() {
	p.keyOperations.WithLabelValues("delete").Inc()
}

// IncKeyValidation increments the validation counter for an outcome.
func (p *PrometheusRecorder) IncKeyValidation(result string) {
	p.keyValidations.WithLabelValues(result).Inc()
}

// IncIdentityCacheHit increments the cache hit counter.
func (p *PrometheusRecorder) IncIdentityCacheHit() {
	p.identityCacheOps.WithLabelValues("hit").Inc()
}

// IncIdentityCacheMiss increments the cache miss counter.
func (p *PrometheusRecorder) IncIdentityCacheMiss() {
	p.identityCacheOps.WithLabelValues("miss").Inc()
}

// IncUserUpserted increments the upsert counter.
func (p *PrometheusRecorder) IncUserUpserted() {
	p.userUpserts.Inc()
}
