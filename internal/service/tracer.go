package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/pagewatch/pagewatch/internal/browser"
	"github.com/pagewatch/pagewatch/internal/model"
)

// Error classes of a trace request. Validation errors are the caller's
// fault and map to 4xx responses; automation and store errors are transient
// infrastructure failures the caller may retry.
var (
	ErrInvalidInput = errors.New("invalid url")
	ErrForbidden    = errors.New("url host not allowed")
	ErrAutomation   = errors.New("browser automation failed")
	ErrStoreWrite   = errors.New("metric record write failed")
)

// PageTracer captures the performance telemetry of one page load.
// *browser.Chrome is the production implementation.
type PageTracer interface {
	Trace(ctx context.Context, url string) (*browser.Capture, error)
}

type tracerMetrics struct {
	TraceCount   metric.Int64Counter
	TraceLatency metric.Int64Histogram
}

func newTracerMetrics(meter metric.Meter) tracerMetrics {
	TraceCount, err := meter.Int64Counter("pagewatch.trace.count",
		metric.WithDescription("The total number of trace requests, by result class."),
		metric.WithUnit("1"),
	)
	if err != nil {
		log.Warn().Err(err).
			Str("metric", "pagewatch.trace.count").
			Msg("failed to create metric")
		TraceCount = noop.Int64Counter{}
	}

	TraceLatency, err := meter.Int64Histogram("pagewatch.trace.latency",
		metric.WithDescription("End-to-end latency of successful trace requests, from validation through the metric record write."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		log.Warn().Err(err).
			Str("metric", "pagewatch.trace.latency").
			Msg("failed to create metric")
		TraceLatency = noop.Int64Histogram{}
	}

	return tracerMetrics{
		TraceCount:   TraceCount,
		TraceLatency: TraceLatency,
	}
}

// TraceOutcome is the success response of a trace request: the final
// resolved page URL and the storage key of the metric record.
type TraceOutcome struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type tracer struct {
	browser      PageTracer
	store        ObjectStore
	bucket       string
	allowedHosts *regexp.Regexp
	now          func() time.Time
	metrics      tracerMetrics
}

func NewTracer(pages PageTracer, store ObjectStore, bucket string, allowedHosts *regexp.Regexp, meter metric.Meter) *tracer {
	return &tracer{
		browser:      pages,
		store:        store,
		bucket:       bucket,
		allowedHosts: allowedHosts,
		now:          time.Now,
		metrics:      newTracerMetrics(meter),
	}
}

// Trace validates the target URL, drives a browser session to capture its
// performance metrics, and persists the metric record. The store write is
// the final step: either a complete record lands in the bucket or nothing
// does.
func (svc *tracer) Trace(ctx context.Context, rawURL string) (*TraceOutcome, error) {
	start := svc.now()
	outcome, err := svc.trace(ctx, rawURL)

	svc.metrics.TraceCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", traceResultLabel(err)),
	))
	if err == nil {
		svc.metrics.TraceLatency.Record(ctx, svc.now().Sub(start).Milliseconds())
	}

	return outcome, err
}

func (svc *tracer) trace(ctx context.Context, rawURL string) (*TraceOutcome, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: no url provided", ErrInvalidInput)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInput, rawURL)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: no hostname in %q", ErrInvalidInput, rawURL)
	}

	// The allow-list match is unanchored: a pattern like www\.example\.com
	// also matches www.example.com.evil.org. Anchoring is the operator's
	// choice via ^...$ in ALLOWED_HOSTS.
	if !svc.allowedHosts.MatchString(host) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, host)
	}

	logger := zerolog.Ctx(ctx).With().Str("page_url", parsed.String()).Logger()
	logger.Debug().Msg("starting page trace")

	capture, err := svc.browser.Trace(ctx, parsed.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAutomation, err)
	}

	payload, err := capture.Metrics.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAutomation, err)
	}

	name := model.ObjectName(svc.now())
	err = svc.store.Write(ctx, svc.bucket, name, payload, "application/json", map[string]string{
		"pageUrl": capture.FinalURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	logger.Info().
		Str("object", model.GSURL(svc.bucket, name)).
		Str("final_url", capture.FinalURL).
		Msg("metric record stored")

	return &TraceOutcome{URL: capture.FinalURL, Filename: name}, nil
}

func traceResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStoreWrite):
		return "store_write_failure"
	default:
		return "automation_failure"
	}
}
