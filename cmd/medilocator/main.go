package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alpineworks.io/ootel"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/searchandrescuegg/medilocator/internal/auth"
	"github.com/searchandrescuegg/medilocator/internal/chat"
	"github.com/searchandrescuegg/medilocator/internal/config"
	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
	"github.com/searchandrescuegg/medilocator/internal/emergency"
	"github.com/searchandrescuegg/medilocator/internal/llm"
	"github.com/searchandrescuegg/medilocator/internal/logging"
	"github.com/searchandrescuegg/medilocator/internal/pulsar"
	"github.com/searchandrescuegg/medilocator/internal/s3"
	"github.com/searchandrescuegg/medilocator/internal/server"
	"github.com/searchandrescuegg/medilocator/internal/slack"
	"github.com/searchandrescuegg/medilocator/internal/telemetry"
	"github.com/searchandrescuegg/medilocator/pkg/asr"
	goslack "github.com/slack-go/slack"
	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not load .env file: %s", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "error"
	}

	slogLevel, err := logging.LogLevelToSlogLevel(logLevel)
	if err != nil {
		log.Fatalf("could not convert log level: %s", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	})))
	c, err := config.NewConfig()
	if err != nil {
		slog.Error("could not create config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	exporterType := ootel.ExporterTypePrometheus
	if c.Local {
		exporterType = ootel.ExporterTypeOTLPGRPC
	}

	ootelClient := ootel.NewOotelClient(
		ootel.WithMetricConfig(
			ootel.NewMetricConfig(
				c.MetricsEnabled,
				exporterType,
				c.MetricsPort,
			),
		),
		ootel.WithTraceConfig(
			ootel.NewTraceConfig(
				c.TracingEnabled,
				c.TracingSampleRate,
				c.TracingService,
				c.TracingVersion,
			),
		),
	)

	shutdown, err := ootelClient.Init(ctx)
	if err != nil {
		slog.Error("could not create ootel client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(5 * time.Second))
	if err != nil {
		slog.Error("could not create runtime metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = host.Start()
	if err != nil {
		slog.Error("could not create host metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = shutdown(ctx)
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.MeterName))
	if err != nil {
		slog.Error("could not create metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dragonflyClient, err := dragonfly.NewClient(ctx, &redis.Options{
		Addr:     c.DragonflyAddress,
		Password: c.DragonflyPassword,
		DB:       c.DragonflyDB,
	}, c.DragonflyRequestTimeout)
	if err != nil {
		slog.Error("failed to create dragonfly client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		_ = dragonflyClient.Close()
	}()

	completer, err := llm.NewChatCompleter(c)
	if err != nil {
		slog.Error("could not create llm client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorderOpts := []emergency.Option{
		emergency.WithMetrics(metrics),
		emergency.WithDedupeTTL(c.DispatchDedupeTTL),
		emergency.WithThreadTTL(c.SlackThreadTTL),
		emergency.WithSinkConcurrency(c.SinkConcurrency),
		emergency.WithSinkTimeout(c.SinkTimeout),
	}

	if c.PulsarEnabled {
		pulsarClient, err := pulsar.NewPublisher(c.PulsarURL, c.PulsarDispatchTopic, c.PulsarTimeout)
		if err != nil {
			slog.Error("could not create pulsar client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pulsarClient.Close()
		recorderOpts = append(recorderOpts, emergency.WithPublisher(pulsarClient))
	}

	if c.SlackEnabled() {
		notifier := slack.NewNotifier(goslack.New(c.SlackToken), c.SlackChannelID, c.SlackTimeout)
		recorderOpts = append(recorderOpts, emergency.WithNotifier(notifier))
	}

	if c.S3Enabled {
		s3Client, err := s3.NewS3Client(ctx, c.S3AccessKey, c.S3SecretKey, c.S3Endpoint, c.S3Region, c.S3Bucket, c.S3Timeout)
		if err != nil {
			slog.Error("could not create s3 client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		recorderOpts = append(recorderOpts, emergency.WithArchiver(s3Client))
	}

	var transcriber server.Transcriber
	if c.ASREnabled {
		transcriber = asr.NewASRClient(c.ASREndpoint, &http.Client{Timeout: c.ASRTimeout}, c.ASRTimeout)
	}

	authService := auth.NewService(dragonflyClient, auth.NewTokenIssuer(c.JWTSecret, c.AccessTokenExpiry))
	chatService := chat.NewService(completer, c.LLMTimeout, metrics)
	recorder := emergency.NewRecorder(dragonflyClient, recorderOpts...)

	srv := server.NewServer(server.Options{
		ServiceName:   c.ProjectName,
		Version:       c.APIVersion,
		CORSOrigins:   c.CORSOrigins,
		MaxBodyBytes:  c.MaxBodyBytes,
		MaxAudioBytes: c.MaxAudioBytes,
		HealthChecker: dragonflyClient,
	}, authService, chatService, recorder, transcriber)

	httpServer := &http.Server{
		Addr:              c.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), "medilocator"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting medilocator service",
			slog.String("address", c.ListenAddress),
			slog.String("llm_provider", c.LLMProvider),
			slog.Bool("pulsar", c.PulsarEnabled),
			slog.Bool("slack", c.SlackEnabled()),
			slog.Bool("s3", c.S3Enabled),
			slog.Bool("asr", c.ASREnabled),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	slog.Info("received shutdown signal, stopping server")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down http server", slog.String("error", err.Error()))
	}

	recorder.Wait()
	slog.Info("server stopped")
}
