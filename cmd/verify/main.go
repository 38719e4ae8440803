// Package main re-derives every analysis document from the metric records in
// the bucket and compares the result against what Firestore actually holds.
// A non-zero exit means the pipeline dropped, duplicated, or corrupted data.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pagewatch/pagewatch/internal/model"
)

type config struct {
	ProjectID         string        `env:"GOOGLE_CLOUD_PROJECT, required"`
	DatabaseID        string        `env:"DATABASE_ID, default=(default)"`
	MetricsBucket     string        `env:"METRICS_BUCKET, required"`
	MetricsCollection string        `env:"METRICS_COLLECTION, default=page-metrics"`
	MaxPaintMillis    int64         `env:"MAX_TIME_MEANINGFUL_PAINT, required"`
	Timeout           time.Duration `env:"TIMEOUT, default=5m"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := run(context.Background()); err != nil {
		log.Error().Err(err).Msg("verification failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
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

	firestoreClient, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID)
	if err != nil {
		return fmt.Errorf("failed to create firestore client: %w", err)
	}
	defer firestoreClient.Close()

	collection := firestoreClient.Collection(cfg.MetricsCollection)

	discrepancies := 0
	seen := make(map[string]struct{})

	it := storageClient.Bucket(cfg.MetricsBucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		seen[attrs.Name] = struct{}{}

		want, err := expectedAnalysis(ctx, storageClient, attrs, cfg.MaxPaintMillis)
		if err != nil {
			discrepancies++
			log.Error().Err(err).Str("object", attrs.Name).Msg("unreadable metric record")
			continue
		}

		snap, err := collection.Doc(attrs.Name).Get(ctx)
		if status.Code(err) == codes.NotFound {
			discrepancies++
			log.Error().Str("object", attrs.Name).Msg("missing analysis document")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch document %s: %w", attrs.Name, err)
		}

		var got model.Analysis
		if err := snap.DataTo(&got); err != nil {
			discrepancies++
			log.Error().Err(err).Str("object", attrs.Name).Msg("undecodable analysis document")
			continue
		}

		if !reflect.DeepEqual(&got, want) {
			discrepancies++
			log.Error().Str("object", attrs.Name).Msg("mismatched analysis document")
		}
	}

	// Documents without a backing object indicate the pipeline invented data.
	docIter := collection.Documents(ctx)
	for {
		snap, err := docIter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate documents: %w", err)
		}
		if _, ok := seen[snap.Ref.ID]; !ok {
			discrepancies++
			log.Error().Str("document", snap.Ref.ID).Msg("analysis document without metric record")
		}
	}

	if discrepancies > 0 {
		return fmt.Errorf("%d discrepancies found", discrepancies)
	}
	log.Info().Int("records", len(seen)).Msg("all analysis documents verified")
	return nil
}

func expectedAnalysis(ctx context.Context, client *storage.Client, attrs *storage.ObjectAttrs, maxPaintMillis int64) (*model.Analysis, error) {
	r, err := client.Bucket(attrs.Bucket).Object(attrs.Name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	metrics, err := model.ParseMetrics(data)
	if err != nil {
		return nil, err
	}

	fetchTimestamp := attrs.Created.UTC().Format(time.RFC3339Nano)
	return model.NewAnalysis(attrs.Bucket, attrs.Name, attrs.Metadata["pageUrl"], fetchTimestamp, metrics, maxPaintMillis), nil
}
