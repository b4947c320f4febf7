package rpcgate

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricProxySelectFallbackCount counts weighted picks which matched no
	// configured candidate and fell back to the first one in list order.
	// A non-zero value usually indicates an address normalization mismatch
	// between the picker and the selector configuration.
	MetricProxySelectFallbackCount = []string{"rpcgate", "select", "fallback", "count"}
	MetricProxyRefRebuildCount     = []string{"rpcgate", "ref", "rebuild", "count"}
	MetricProxyInvokeCount         = []string{"rpcgate", "invoke", "count"}
	MetricProxyInvokeErrorCount    = []string{"rpcgate", "invoke", "error", "count"}
)

type TelemetryLabel string

var (
	LabelError       TelemetryLabel = "error"
	LabelMethod      TelemetryLabel = "method"
	LabelServicePath TelemetryLabel = "service_path"
	LabelRefKey      TelemetryLabel = "ref_key"
	LabelStrategy    TelemetryLabel = "strategy"
	LabelUpstream    TelemetryLabel = "upstream"
	LabelNamespace   TelemetryLabel = "namespace"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
