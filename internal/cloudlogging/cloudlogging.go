// Package cloudlogging adapts zerolog output to the structured-logging
// format Cloud Logging ingests: severity field names and values per
// https://cloud.google.com/logging/docs/structured-logging, plus trace
// correlation with the active OpenTelemetry span.
package cloudlogging

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LevelFieldMarshalFunc maps zerolog levels to Cloud Logging severities.
// Assign to zerolog.LevelFieldMarshalFunc together with setting
// zerolog.LevelFieldName to "severity".
func LevelFieldMarshalFunc(l zerolog.Level) string {
	switch l {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return "DEBUG"
	case zerolog.InfoLevel:
		return "INFO"
	case zerolog.WarnLevel:
		return "WARNING"
	case zerolog.ErrorLevel:
		return "ERROR"
	case zerolog.FatalLevel:
		return "CRITICAL"
	case zerolog.PanicLevel:
		return "ALERT"
	default:
		return "DEFAULT"
	}
}

type traceHook struct {
	projectID string
}

// Hook returns a zerolog hook that annotates every event with the
// logging.googleapis.com/trace and span fields Cloud Logging uses to
// correlate log entries with Cloud Trace.
func Hook(projectID string) zerolog.Hook {
	return traceHook{projectID: projectID}
}

func (h traceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return
	}

	e.Str("logging.googleapis.com/trace", "projects/"+h.projectID+"/traces/"+spanCtx.TraceID().String())
	e.Str("logging.googleapis.com/spanId", spanCtx.SpanID().String())
	e.Bool("logging.googleapis.com/trace_sampled", spanCtx.IsSampled())
}
