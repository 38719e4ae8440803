package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/pagewatch/pagewatch/internal/model"
)

type alerterMetrics struct {
	AlertCount metric.Int64Counter
}

func newAlerterMetrics(meter metric.Meter) alerterMetrics {
	AlertCount, err := meter.Int64Counter("pagewatch.alert.count",
		metric.WithDescription("The total number of analysis documents processed by the alerter, by result."),
		metric.WithUnit("1"),
	)
	if err != nil {
		log.Warn().Err(err).
			Str("metric", "pagewatch.alert.count").
			Msg("failed to create metric")
		AlertCount = noop.Int64Counter{}
	}

	return alerterMetrics{AlertCount: AlertCount}
}

type AlertResult uint8

const (
	AlertResultUnknown AlertResult = iota
	AlertResultPublished
	AlertResultSkipped
	AlertResultError
)

func (r AlertResult) String() string {
	switch r {
	case AlertResultUnknown:
		return "unknown"
	case AlertResultPublished:
		return "published"
	case AlertResultSkipped:
		return "skipped"
	case AlertResultError:
		return "error"
	default:
		return fmt.Sprintf("unknown (%d)", r)
	}
}

type alerter struct {
	topic   Topic
	metrics alerterMetrics
}

func NewAlerter(topic Topic, meter metric.Meter) *alerter {
	return &alerter{
		topic:   topic,
		metrics: newAlerterMetrics(meter),
	}
}

// Alert handles one document-created event on the analysis collection. A
// document whose status signals a threshold violation produces exactly one
// alert message; anything else produces none. Duplicate deliveries may
// publish duplicate alerts, which downstream subscribers must tolerate; the
// analysis document itself is never touched.
func (svc *alerter) Alert(ctx context.Context, event *firestoredata.DocumentEventData) (AlertResult, error) {
	result, err := svc.alert(ctx, event)
	svc.metrics.AlertCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result.String()),
	))
	return result, err
}

func (svc *alerter) alert(ctx context.Context, event *firestoredata.DocumentEventData) (AlertResult, error) {
	doc := event.GetValue()
	if doc == nil {
		return AlertResultError, fmt.Errorf("document event has no value")
	}

	status := model.AnalysisStatus(doc)
	logger := zerolog.Ctx(ctx).With().
		Str("document", model.DocumentPath(doc.GetName())).
		Str("status", status).
		Logger()

	if !model.StatusViolation(status) {
		logger.Debug().Msg("analysis within threshold, no alert")
		return AlertResultSkipped, nil
	}

	msg := model.NewAlertMessage(doc)
	payload, err := msg.Marshal()
	if err != nil {
		return AlertResultError, fmt.Errorf("encoding alert message: %w", err)
	}

	res := svc.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"pageUrl": msg.PageURL,
		},
	})

	id, err := res.Get(ctx)
	if err != nil {
		return AlertResultError, fmt.Errorf("publishing alert: %w", err)
	}

	logger.Info().
		Str("message_id", id).
		Str("page_url", msg.PageURL).
		Msg("alert published")

	return AlertResultPublished, nil
}
