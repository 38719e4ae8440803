package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// CloudEvent annotates the request logger and the active span with the
// ce-* headers Eventarc attaches to its deliveries. Storage events carry
// ce-bucket, Firestore events ce-database and ce-document. Requests without
// CloudEvent headers pass through untouched.
func CloudEvent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ceDict := zerolog.Dict()
		traceAttrs := make([]attribute.KeyValue, 0, 10)

		if id := r.Header.Get("ce-id"); id != "" {
			ceDict.Str("id", id)
			traceAttrs = append(traceAttrs, semconv.CloudEventsEventID(id))
		}

		if source := r.Header.Get("ce-source"); source != "" {
			ceDict.Str("source", source)
			traceAttrs = append(traceAttrs, semconv.CloudEventsEventSource(source))
		}

		if specVersion := r.Header.Get("ce-specversion"); specVersion != "" {
			ceDict.Str("specversion", specVersion)
			traceAttrs = append(traceAttrs, semconv.CloudEventsEventSpecVersion(specVersion))
		}

		if subject := r.Header.Get("ce-subject"); subject != "" {
			ceDict.Str("subject", subject)
			traceAttrs = append(traceAttrs, semconv.CloudEventsEventSubject(subject))
		}

		if eventType := r.Header.Get("ce-type"); eventType != "" {
			ceDict.Str("type", eventType)
			traceAttrs = append(traceAttrs, semconv.CloudEventsEventType(eventType))
		}

		// Non-standard OTEL attribute convention, but useful nonetheless

		if time := r.Header.Get("ce-time"); time != "" {
			ceDict.Str("time", time)
			traceAttrs = append(traceAttrs, attribute.String("cloudevents.event_time", time))
		}

		if bucket := r.Header.Get("ce-bucket"); bucket != "" {
			ceDict.Str("bucket", bucket)
			traceAttrs = append(traceAttrs, attribute.String("cloudevents.event_bucket", bucket))
		}

		if database := r.Header.Get("ce-database"); database != "" {
			ceDict.Str("database", database)
			traceAttrs = append(traceAttrs, attribute.String("cloudevents.event_database", database))
		}

		if document := r.Header.Get("ce-document"); document != "" {
			ceDict.Str("document", document)
			traceAttrs = append(traceAttrs, attribute.String("cloudevents.event_document", document))
		}

		if dataContentType := r.Header.Get("ce-datacontenttype"); dataContentType != "" {
			ceDict.Str("datacontenttype", dataContentType)
			traceAttrs = append(traceAttrs, attribute.String("cloudevents.event_datacontenttype", dataContentType))
		}

		if len(traceAttrs) == 0 {
			// No CloudEvent headers, skip
			next.ServeHTTP(w, r)
			return
		}

		logger := zerolog.Ctx(ctx).With().
			Dict("cloudevent", ceDict).
			Logger()

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(traceAttrs...)
		}

		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}
