package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/auth"
	"github.com/example/bulk-record-processor/internal/batch"
	"github.com/example/bulk-record-processor/internal/config"
	"github.com/example/bulk-record-processor/internal/health"
	"github.com/example/bulk-record-processor/internal/httpapi"
	"github.com/example/bulk-record-processor/internal/identityapi"
	"github.com/example/bulk-record-processor/internal/kafka"
	"github.com/example/bulk-record-processor/internal/kafka/consumer"
	"github.com/example/bulk-record-processor/internal/kafka/producer"
	kafkapublisher "github.com/example/bulk-record-processor/internal/kafka/publisher"
	"github.com/example/bulk-record-processor/internal/logger"
	"github.com/example/bulk-record-processor/internal/metrics"
	"github.com/example/bulk-record-processor/internal/reconcile"
	"github.com/example/bulk-record-processor/internal/recordapi"
	"github.com/example/bulk-record-processor/internal/report"
	"github.com/example/bulk-record-processor/internal/status"
	"github.com/example/bulk-record-processor/internal/storage"
	"github.com/example/bulk-record-processor/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	metricsManager := metrics.NewManager()

	// Kafka
	consumerOpts := []consumer.Option{consumer.WithClientID(cfg.Kafka.ClientID)}
	producerOpts := []producer.Option{producer.WithClientID(cfg.Kafka.ClientID)}
	if cfg.Kafka.TLSEnabled() {
		tlsCfg, err := kafka.NewTLSConfig(cfg.Kafka.ClientCert, cfg.Kafka.ClientCertKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load kafka client certificate")
		}
		consumerOpts = append(consumerOpts, consumer.WithTLS(tlsCfg))
		producerOpts = append(producerOpts, producer.WithTLS(tlsCfg))
	}

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.GroupID, logger.Component(log, "kafka_consumer"), cfg.Kafka.CommitOnAck, consumerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	// Outbound HTTP
	timeout := time.Duration(cfg.Outbound.TimeoutSeconds) * time.Second
	var httpClient httpapi.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.Auth.TokenURL != "" {
		ts, err := auth.TokenSource(ctx, auth.Config{
			TokenURL:     cfg.Auth.TokenURL,
			ProxyURL:     cfg.Auth.ProxyURL,
			Audience:     cfg.Auth.Audience,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Timeout:      timeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure m2m token source")
		}
		httpClient = auth.NewHTTPClient(ts, timeout)
	}

	newAPI := func(name, baseURL string) *httpapi.Client {
		client, err := httpapi.New(name, baseURL, logger.Component(log, name),
			httpapi.WithHTTPClient(httpClient),
			httpapi.WithRateLimit(float64(cfg.Outbound.RateLimitRPS), cfg.Outbound.RateLimitBurst),
			httpapi.WithBreaker(uint32(cfg.Outbound.BreakerMaxFailures), time.Duration(cfg.Outbound.BreakerOpenSeconds)*time.Second),
			httpapi.WithBodyLimit(int64(cfg.Outbound.ResponseBodyMaxSize)),
		)
		if err != nil {
			log.Fatal().Err(err).Str("api", name).Msg("failed to create api client")
		}
		return client
	}
	records := recordapi.New(newAPI("record_api", cfg.APIs.RecordURL), logger.Component(log, "record_api"))
	identities := identityapi.New(newAPI("identity_api", cfg.APIs.IdentityURL), logger.Component(log, "identity_api"))

	// Status reporting
	reporters := status.FanOut{status.NewHTTPReporter(newAPI("status_api", cfg.APIs.StatusURL), logger.Component(log, "status_api"))}
	checks := map[string]health.Checker{"kafka_consumer": cons}
	if cfg.Kafka.StatusTopic != "" {
		prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka_producer"), producerOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		reporters = append(reporters, kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, logger.Component(log, "status_publisher")))
		checks["kafka_producer"] = prod
	}

	// Storage
	s3Client, err := storage.NewClient(ctx, storage.Config{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create s3 client")
	}
	store, err := storage.New(s3Client, storage.Config{
		UploadBucket:  cfg.Storage.UploadBucket,
		FailureBucket: cfg.Storage.FailedRecordBucket,
	}, int64(cfg.Storage.MaxWorkbookBytes), logger.Component(log, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage")
	}

	// Processing
	policy := reconcile.FailOnMissing
	if cfg.Processor.CreateMissingUser {
		policy = reconcile.CreateOnMissing
	}
	reconciler := reconcile.New(records, logger.Component(log, "reconciler"),
		reconcile.WithPolicy(policy),
		reconcile.WithExternalUsers(identities),
	)

	runner, err := batch.NewRunner(batch.Config{Concurrency: cfg.Processor.Concurrency}, batch.Dependencies{
		Reconciler: reconciler,
		Observer:   metricsManager,
		Logger:     log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise batch runner")
	}

	engine, err := worker.NewEngine(worker.Dependencies{
		Downloader:      store,
		Runner:          runner,
		FailureReporter: report.New(store, logger.Component(log, "failure_report")),
		StatusReporter:  reporters,
		Committer: worker.CommitFunc(func(ctx context.Context, record *worker.Record) error {
			return record.Commit(ctx)
		}),
		Metrics:         metricsManager,
		Logger:          log,
		Now:             time.Now,
		FinalizeTimeout: time.Duration(cfg.Processor.FinalizeTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	// Health and metrics
	healthServer := health.NewServer(health.Config{
		Port:           cfg.App.Port,
		HandlerTimeout: time.Duration(cfg.Health.HandlerTimeoutMs) * time.Millisecond,
	}, checks, metricsManager.Handler(), logger.Component(log, "health"))
	if err := healthServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start health server")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop health server")
		}
	}()

	topics := []string{cfg.Kafka.ActionTopic}
	handler := worker.KafkaHandler(engine, cons)

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, topics, handler); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("action_topic", cfg.Kafka.ActionTopic).
		Int("concurrency", cfg.Processor.Concurrency).
		Str("missing_user_policy", policy.String()).
		Msg("bulk record processor started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("bulk record processor init failed")
}
