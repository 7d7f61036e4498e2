package core

import (
	"context"
	"strings"
)

const metricsNamespace = "inventory"

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// metricName builds inventory.<operation>.<suffix>.
func metricName(operation string, suffix string) string {
	parts := []string{metricsNamespace}
	if operation = normalizeOperation(operation); operation != "" {
		parts = append(parts, operation)
	}
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, ".")
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
