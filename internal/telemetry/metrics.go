package telemetry

import (
	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewCloudMonitoringMetricReader returns a periodic reader exporting to
// Google Cloud Monitoring.
func NewCloudMonitoringMetricReader(projectID string) (sdkmetric.Reader, error) {
	exp, err := mexporter.New(mexporter.WithProjectID(projectID))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}

// NewStdoutMetricReader returns a periodic reader printing to stdout for
// local development.
func NewStdoutMetricReader() (sdkmetric.Reader, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
