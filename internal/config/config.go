package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Project ID of the project the Cloud Run service belongs to.
	ProjectID string `env:"GOOGLE_CLOUD_PROJECT, required"`

	// Region of this Cloud Run service.
	Region string `env:"GOOGLE_CLOUD_REGION, required"`

	// Unique identifier of the instance.
	InstanceID string `env:"CLOUD_RUN_INSTANCE_ID, required"`

	// The port the HTTP server should listen on.
	Port uint16 `env:"PORT, default=8080"`

	// The name of the Cloud Run service being run.
	ServiceName string `env:"K_SERVICE, default=pagewatch"`

	// The name of the Cloud Run revision being run.
	ServiceRevision string `env:"K_REVISION, required"`

	// Environment of the Cloud Run service.
	Environment string `env:"ENVIRONMENT, default=production"`

	// GracefulShutdownTimeout represents how long the service has to
	// gracefully terminate after receiving a SIGTERM or SIGINT signal.
	// Cloud Run will forcefully terminate the application after 10 seconds.
	// https://cloud.google.com/run/docs/reference/container-contract#instance-shutdown
	ServerGracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT, default=8s"`

	// RequestTimeout bounds a single HTTP request, including the browser
	// session a trace request owns.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=90s"`

	// MetricsBucket is the Cloud Storage bucket metric records are written to
	// and read back from by the analyzer.
	MetricsBucket string `env:"METRICS_BUCKET, required"`

	// AllowedHosts is the regular expression a hostname must match before the
	// tracer will load it. The match is unanchored.
	AllowedHosts string `env:"ALLOWED_HOSTS, required"`

	// MetricsCollection is the Firestore collection analysis documents are
	// written to.
	MetricsCollection string `env:"METRICS_COLLECTION, default=page-metrics"`

	// MaxPaintMillis is the first-meaningful-paint threshold in milliseconds.
	// Pages above it are marked FAIL.
	MaxPaintMillis int64 `env:"MAX_TIME_MEANINGFUL_PAINT, required"`

	// AlertTopic is the Cloud Pub/Sub topic alerts are published to.
	AlertTopic string `env:"ALERT_TOPIC, default=performance-alerts"`

	// NavigationTimeout bounds one headless-browser session, launch through
	// network idle.
	NavigationTimeout time.Duration `env:"NAVIGATION_TIMEOUT, default=60s"`

	// NetworkQuietPeriod is how long the network must stay free of in-flight
	// requests before a navigation counts as settled (networkidle0).
	NetworkQuietPeriod time.Duration `env:"NETWORK_QUIET_PERIOD, default=500ms"`

	// LogLevel controls the verbosity of the logs.
	LogLevel zerolog.Level `env:"LOG_LEVEL, default=info"`

	// TracingEnabled enables tracing of the service.
	TracingEnabled bool `env:"ENABLE_TRACING, default=true"`

	// MetricsEnabled enables metrics of the service.
	MetricsEnabled bool `env:"ENABLE_METRICS, default=true"`

	// ProfilingEnabled enables profiling of the service.
	ProfilingEnabled bool `env:"ENABLE_PROFILING, default=false"`

	// TraceSampleRatio is the ratio of traces to sample.
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG, default=0.1"`
}

func environmentDefaults(env string) envconfig.Lookuper {
	switch env {
	case "local":
		return envconfig.MapLookuper(map[string]string{
			"GOOGLE_CLOUD_PROJECT":  "pagewatch",
			"GOOGLE_CLOUD_REGION":   "us-central1",
			"CLOUD_RUN_INSTANCE_ID": "local",
			"K_REVISION":            "local",
			"LOG_LEVEL":             "debug",
			"ENABLE_TRACING":        "false",
			"ENABLE_METRICS":        "false",
			"ENABLE_PROFILING":      "false",
		})
	case "development":
		return envconfig.MapLookuper(map[string]string{
			"ENABLE_PROFILING":        "true",
			"LOG_LEVEL":               "debug",
			"OTEL_TRACES_SAMPLER_ARG": "1.0",
		})
	default:
		// production defaults are set in the struct tags
		return envconfig.MapLookuper(nil)
	}
}

func metadataLookuper(ctx context.Context) envconfig.Lookuper {
	return envconfig.LookuperFunc(func(key string) (string, bool) {
		if !metadata.OnGCEWithContext(ctx) {
			return "", false
		}

		switch key {
		case "GOOGLE_CLOUD_PROJECT":
			projectID, err := metadata.ProjectIDWithContext(ctx)
			if err != nil {
				return "", false
			}
			return projectID, true
		case "GOOGLE_CLOUD_REGION":
			region, err := metadata.GetWithContext(ctx, "instance/region")
			if err != nil {
				return "", false
			}
			return region[strings.LastIndexByte(region, '/')+1:], true
		case "CLOUD_RUN_INSTANCE_ID":
			instanceID, err := metadata.InstanceIDWithContext(ctx)
			if err != nil {
				return "", false
			}
			return instanceID, true
		}
		return "", false
	})
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	opts := &envconfig.Config{
		Target: cfg,
		Lookuper: envconfig.MultiLookuper(
			envconfig.OsLookuper(),
			environmentDefaults(os.Getenv("ENVIRONMENT")),
			metadataLookuper(ctx),
		),
	}

	if err := envconfig.ProcessWith(ctx, opts); err != nil {
		return nil, err
	}

	if _, err := cfg.AllowedHostsPattern(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AllowedHostsPattern compiles the hostname allow-list expression.
func (c *Config) AllowedHostsPattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.AllowedHosts)
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_HOSTS pattern: %w", err)
	}
	return re, nil
}
