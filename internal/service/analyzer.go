package service

import (
	"context"
	"fmt"
	"time"

	"github.com/googleapis/google-cloudevents-go/cloud/storagedata"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/pagewatch/pagewatch/internal/model"
)

type analyzerMetrics struct {
	AnalysisCount metric.Int64Counter
}

func newAnalyzerMetrics(meter metric.Meter) analyzerMetrics {
	AnalysisCount, err := meter.Int64Counter("pagewatch.analysis.count",
		metric.WithDescription("The total number of metric records analyzed, by result."),
		metric.WithUnit("1"),
	)
	if err != nil {
		log.Warn().Err(err).
			Str("metric", "pagewatch.analysis.count").
			Msg("failed to create metric")
		AnalysisCount = noop.Int64Counter{}
	}

	return analyzerMetrics{AnalysisCount: AnalysisCount}
}

type AnalyzeResult uint8

const (
	AnalyzeResultUnknown AnalyzeResult = iota
	AnalyzeResultSuccess
	AnalyzeResultSkipped
	AnalyzeResultError
)

func (r AnalyzeResult) String() string {
	switch r {
	case AnalyzeResultUnknown:
		return "unknown"
	case AnalyzeResultSuccess:
		return "success"
	case AnalyzeResultSkipped:
		return "skipped"
	case AnalyzeResultError:
		return "error"
	default:
		return fmt.Sprintf("unknown (%d)", r)
	}
}

type analyzer struct {
	store          ObjectStore
	docs           DocumentStore
	collection     string
	maxPaintMillis int64
	metrics        analyzerMetrics
}

func NewAnalyzer(store ObjectStore, docs DocumentStore, collection string, maxPaintMillis int64, meter metric.Meter) *analyzer {
	return &analyzer{
		store:          store,
		docs:           docs,
		collection:     collection,
		maxPaintMillis: maxPaintMillis,
		metrics:        newAnalyzerMetrics(meter),
	}
}

// Analyze handles one object-finalized event on the metrics bucket: it reads
// the metric record, derives the computed metrics, and creates the analysis
// document keyed by the object name. The document content is a pure function
// of the object, so a duplicate delivery finds a value-equivalent document
// already in place and is skipped. Unreadable or malformed records fail
// loudly so the platform's retry policy takes over.
func (svc *analyzer) Analyze(ctx context.Context, obj *storagedata.StorageObjectData) (AnalyzeResult, error) {
	result, err := svc.analyze(ctx, obj)
	svc.metrics.AnalysisCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result.String()),
	))
	return result, err
}

func (svc *analyzer) analyze(ctx context.Context, obj *storagedata.StorageObjectData) (AnalyzeResult, error) {
	bucket, name := obj.GetBucket(), obj.GetName()
	if bucket == "" || name == "" {
		return AnalyzeResultError, fmt.Errorf("storage event missing bucket or object name")
	}

	logger := zerolog.Ctx(ctx).With().
		Str("input_file", model.GSURL(bucket, name)).
		Logger()

	data, err := svc.store.Read(ctx, bucket, name)
	if err != nil {
		return AnalyzeResultError, err
	}

	computed, err := model.ParseMetrics(data)
	if err != nil {
		return AnalyzeResultError, err
	}

	var fetchTimestamp string
	if t := obj.GetTimeCreated(); t != nil {
		fetchTimestamp = t.AsTime().UTC().Format(time.RFC3339Nano)
	}

	analysis := model.NewAnalysis(bucket, name, obj.GetMetadata()["pageUrl"], fetchTimestamp, computed, svc.maxPaintMillis)

	if analysis.Violation() {
		logger.Warn().
			Int64("first_meaningful_paint", computed.FirstMeaningfulPaint).
			Int64("threshold", svc.maxPaintMillis).
			Msg("page load time exceeded max threshold")
	}

	if err := svc.docs.Create(ctx, svc.collection, name, analysis); err != nil {
		if isAlreadyExists(err) {
			logger.Debug().Msg("analysis document already exists, duplicate delivery skipped")
			return AnalyzeResultSkipped, nil
		}
		return AnalyzeResultError, fmt.Errorf("creating analysis document: %w", err)
	}

	logger.Info().
		Str("collection", svc.collection).
		Str("status", analysis.Status).
		Msg("analysis document created")

	return AnalyzeResultSuccess, nil
}
