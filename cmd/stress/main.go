// Package main floods the analyze path with synthetic metric records. A
// seeded generator produces a deterministic set of records so repeated runs
// against the same environment are comparable.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"github.com/pagewatch/pagewatch/internal/model"
	"github.com/pagewatch/pagewatch/internal/simulator"
)

type config struct {
	Seed          int64         `env:"SEED, required"`
	ServiceURL    string        `env:"SERVICE_URL, default=http://pagewatch:8080"`
	MetricsBucket string        `env:"METRICS_BUCKET, required"`
	RecordCount   int           `env:"RECORD_COUNT, default=100"`
	Timeout       time.Duration `env:"TIMEOUT, default=5m"`
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run stress util")
	}
}

func run(ctx context.Context) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer storageClient.Close()

	driver := simulator.NewDriver(storageClient, cfg.ServiceURL, cfg.MetricsBucket)
	r := rand.New(rand.NewSource(cfg.Seed))
	bucket := storageClient.Bucket(cfg.MetricsBucket)

	for i := 0; i < cfg.RecordCount; i++ {
		record := syntheticRecord(r)
		payload, err := record.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		name := model.ObjectName(time.Now())
		pageURL := fmt.Sprintf("https://www.example.com/page-%d", r.Intn(cfg.RecordCount))

		w := bucket.Object(name).NewWriter(ctx)
		w.ContentType = "application/json"
		w.Metadata = map[string]string{"pageUrl": pageURL}
		if _, err := w.Write(payload); err != nil {
			w.Close()
			return fmt.Errorf("failed to write record %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to write record %s: %w", name, err)
		}

		if err := driver.EmitObjectFinalized(ctx, name); err != nil {
			log.Error().Err(err).Str("object", name).Msg("finalize event failed")
		} else {
			log.Info().Str("object", name).Msg("record analyzed")
		}
	}

	return nil
}

// syntheticRecord mimics a Performance.getMetrics snapshot. Paint times are
// spread around typical thresholds so both PASS and FAIL documents appear.
func syntheticRecord(r *rand.Rand) *model.MetricsPayload {
	start := 1e9 + r.Float64()*1e8
	domContentLoaded := r.Float64() * 3
	firstMeaningfulPaint := domContentLoaded + r.Float64()*4

	return &model.MetricsPayload{Metrics: []model.Metric{
		{Name: "NavigationStart", Value: start},
		{Name: "DomContentLoaded", Value: start + domContentLoaded},
		{Name: "FirstMeaningfulPaint", Value: start + firstMeaningfulPaint},
		{Name: "JSHeapTotalSize", Value: float64(8_000_000 + r.Intn(64_000_000))},
		{Name: "JSHeapUsedSize", Value: float64(4_000_000 + r.Intn(8_000_000))},
	}}
}
