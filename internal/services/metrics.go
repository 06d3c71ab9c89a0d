package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var insightGenerations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "insight_generations_total",
		Help: "Insight generation requests by the source that answered them.",
	},
	[]string{"source"},
)

func init() {
	prometheus.MustRegister(insightGenerations)
}

func recordOutcome(span trace.Span, source string) {
	insightGenerations.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.String("insight.source", source))
}
