package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// AnalysisMetrics records the latency and outcome of engine operations.
type AnalysisMetrics struct {
	operationDuration *prometheus.HistogramVec
	reviewEvents      *prometheus.CounterVec
	recommendations   *prometheus.HistogramVec
}

func NewAnalysisMetrics(logger *logrus.Logger) *AnalysisMetrics {
	m := &AnalysisMetrics{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filmtaste_analysis_operation_duration_seconds",
			Help:    "Duration of taste analysis operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation", "status"}),
		reviewEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmtaste_review_events_total",
			Help: "Review events handled by action and outcome",
		}, []string{"action", "status"}),
		recommendations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filmtaste_recommendation_list_size",
			Help:    "Number of movies returned per recommendation request",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}, []string{"strategy"}),
	}

	m.operationDuration = registerCollector(m.operationDuration, "filmtaste_analysis_operation_duration_seconds", logger)
	m.reviewEvents = registerCollector(m.reviewEvents, "filmtaste_review_events_total", logger)
	m.recommendations = registerCollector(m.recommendations, "filmtaste_recommendation_list_size", logger)

	return m
}

func (m *AnalysisMetrics) ObserveOperation(operation string, start time.Time, err error) {
	m.operationDuration.WithLabelValues(operation, statusLabel(err)).Observe(time.Since(start).Seconds())
}

func (m *AnalysisMetrics) CountReviewEvent(action string, err error) {
	m.reviewEvents.WithLabelValues(action, statusLabel(err)).Inc()
}

func (m *AnalysisMetrics) ObserveRecommendations(strategy string, size int) {
	m.recommendations.WithLabelValues(strategy).Observe(float64(size))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// registerCollector registers c, or returns the collector an earlier instance
// already registered under the same descriptor.
func registerCollector[T prometheus.Collector](c T, name string, logger *logrus.Logger) T {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return c
		}
		logger.WithError(err).Warnf("Failed to register %s metric", name)
	}
	return c
}
