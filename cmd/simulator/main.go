// Package main drives the pipeline end to end against the local emulators.
//
// It requests a trace from the service, replays the resulting object as an
// object-finalized CloudEvent, bridges analysis document creations to the
// alert endpoint, and prints every alert the service publishes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"github.com/pagewatch/pagewatch/internal/simulator"
)

type config struct {
	ProjectID         string        `env:"GOOGLE_CLOUD_PROJECT, default=pagewatch"`
	DatabaseID        string        `env:"DATABASE_ID, default=(default)"`
	ServiceURL        string        `env:"SERVICE_URL, default=http://pagewatch:8080"`
	MetricsBucket     string        `env:"METRICS_BUCKET, default=pagewatch-metrics"`
	MetricsCollection string        `env:"METRICS_COLLECTION, default=page-metrics"`
	AlertTopic        string        `env:"ALERT_TOPIC, default=performance-alerts"`
	PageURLs          []string      `env:"PAGE_URLS, default=https://www.example.com/"`
	TraceDelay        time.Duration `env:"TRACE_DELAY, default=10s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run simulator")
	}
}

func run(ctx context.Context) error {
	var shutdownDeadline time.Time
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	defer initCancel()

	log.Debug().Msg("processing environment variables")
	var cfg config
	if err := envconfig.Process(initCtx, &cfg); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}

	log.Debug().Str("project_id", cfg.ProjectID).Msg("initializing clients")
	pubsubClient, err := pubsub.NewClient(initCtx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}
	defer pubsubClient.Close()

	storageClient, err := storage.NewClient(initCtx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer storageClient.Close()

	firestoreClient, err := firestore.NewClientWithDatabase(initCtx, cfg.ProjectID, cfg.DatabaseID)
	if err != nil {
		return fmt.Errorf("failed to create firestore client: %w", err)
	}
	defer func() {
		if err := firestoreClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close firestore client")
		}
	}()

	// Bridge analysis document creations to the alert endpoint, standing in
	// for the Firestore Eventarc trigger.
	watcher, err := simulator.WatchAnalysisCollection(initCtx, pubsubClient, cfg.ProjectID, cfg.DatabaseID,
		firestoreClient.Collection(cfg.MetricsCollection), cfg.ServiceURL+"/v1/alert")
	if err != nil {
		return fmt.Errorf("failed to watch analysis collection: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithDeadline(context.Background(), shutdownDeadline)
		defer cancel()
		if err := watcher.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close watcher")
		}
	}()

	// Subscribe to the alert topic so published alerts become visible.
	alertTopic, err := simulator.NewPubSub(initCtx, pubsubClient, cfg.AlertTopic, simulator.WithPullSubscription())
	if err != nil {
		return fmt.Errorf("failed to initialize alert topic: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithDeadline(context.Background(), shutdownDeadline)
		defer cancel()
		if err := alertTopic.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close alert topic")
		}
	}()

	listenCtx, listenCancel := context.WithCancel(ctx)
	defer listenCancel()
	go func() {
		err := alertTopic.Listen(listenCtx, func(_ context.Context, msg *pubsub.Message) {
			log.Info().
				Str("page_url", msg.Attributes["pageUrl"]).
				RawJSON("alert", msg.Data).
				Msg("alert received")
		})
		if err != nil && listenCtx.Err() == nil {
			log.Error().Err(err).Msg("alert listener stopped")
		}
	}()

	driver := simulator.NewDriver(storageClient, cfg.ServiceURL, cfg.MetricsBucket)
	go func() {
		time.Sleep(cfg.TraceDelay)
		for _, pageURL := range cfg.PageURLs {
			log.Info().Str("page_url", pageURL).Msg("requesting trace")
			filename, err := driver.TracePage(ctx, pageURL)
			if err != nil {
				log.Error().Err(err).Str("page_url", pageURL).Msg("trace failed")
				continue
			}
			if err := driver.EmitObjectFinalized(ctx, filename); err != nil {
				log.Error().Err(err).Str("object", filename).Msg("failed to replay finalize event")
			}
		}
	}()

	shutdownSig, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("simulator up and running")
	<-shutdownSig.Done()
	log.Info().Msg("shutdown signal received, waiting for cleanup")
	shutdownDeadline = time.Now().Add(cfg.ShutdownTimeout)
	listenCancel()

	return nil
}
