// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/vimarsh-ai/vimarsh/pkg/logging"
	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
	"github.com/vimarsh-ai/vimarsh/services/guidance/budget"
	"github.com/vimarsh-ai/vimarsh/services/guidance/cache"
	"github.com/vimarsh-ai/vimarsh/services/guidance/config"
	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/fallback"
	"github.com/vimarsh-ai/vimarsh/services/guidance/observability"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
	"github.com/vimarsh-ai/vimarsh/services/guidance/retrieval"
	"github.com/vimarsh-ai/vimarsh/services/guidance/routes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/services"
	"github.com/vimarsh-ai/vimarsh/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "vimarsh-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("guidance-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient connects to the vector store, or returns nil for
// lightweight mode when no valid URL is configured.
func newWeaviateClient(rawURL string) *weaviate.Client {
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("Weaviate URL not set, running without retrieval")
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		slog.Warn("Weaviate URL is invalid, running without retrieval", "url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

// newLLMClient builds the model client for the given backend name.
func newLLMClient(ctx context.Context, backend string) (llm.LLMClient, error) {
	switch backend {
	case "gemini":
		return llm.NewGeminiClient(ctx)
	case "openai":
		return llm.NewOpenAIClient()
	case "":
		return nil, nil
	default:
		return nil, errors.New("unknown LLM backend: " + backend)
	}
}

func main() {
	// Bootstrap logger until the config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	configPath := os.Getenv("VIMARSH_CONFIG")
	if configPath == "" {
		configPath, err = config.DefaultPath()
		if err != nil {
			log.Fatalf("failed to resolve the config path: %v", err)
		}
	}
	watcher, err := config.NewWatcher(configPath, slog.Default())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := watcher.Current()

	appLog := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: "guidance",
		JSON:    cfg.Logging.JSON,
	})
	defer appLog.Close()
	logger := appLog.Slog()
	slog.SetDefault(logger)

	ctx := context.Background()

	primary, err := newLLMClient(ctx, cfg.LLM.Backend)
	if err != nil || primary == nil {
		log.Fatalf("failed to initialize the %s client: %v", cfg.LLM.Backend, err)
	}
	slog.Info("LLM backend configured", "backend", cfg.LLM.Backend, "model", primary.ModelName())

	// The external backend is best effort; the chain works without it.
	external, err := newLLMClient(ctx, cfg.LLM.FallbackBackend)
	if err != nil {
		slog.Warn("fallback backend unavailable", "backend", cfg.LLM.FallbackBackend, "error", err)
		external = nil
	}

	respCache, err := cache.New(cache.Config{
		Path:   cfg.Cache.Path,
		TTL:    cfg.Cache.TTL,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to open the response cache: %v", err)
	}
	defer respCache.Close()

	registry := personality.DefaultRegistry()

	resMetrics := resilience.NewMetrics()
	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		SuccessThreshold: cfg.Resilience.SuccessThreshold,
		OpenTimeout:      cfg.Resilience.OpenTimeout,
		OnStateChange:    resMetrics.ObserveTransition,
	}
	breakers := resilience.NewBreakerRegistry(breakerCfg)
	classifier := resilience.NewClassifier(resilience.ClassifierConfig{})
	analytics := resilience.NewErrorAnalytics(1000, classifier)
	retry := resilience.NewRetryManager(resilience.RetryConfig{
		MaxAttempts: cfg.Resilience.MaxAttempts,
		BaseDelay:   cfg.Resilience.BaseDelay,
		Strategy:    resilience.BackoffStrategy(cfg.Resilience.BackoffStrategy),
	}, breakers, classifier)
	retry.SetMetrics(resMetrics)
	degradation := resilience.NewDegradationManager(
		fallback.DefaultChain(respCache, primary, external, registry), logger)
	monitor := resilience.NewHealthMonitor(resilience.MonitorConfig{
		Interval: cfg.Resilience.HealthInterval,
	}, breakers, degradation, logger)

	var retriever retrieval.Retriever
	if client := newWeaviateClient(cfg.Weaviate.URL); client != nil {
		wr := retrieval.NewWeaviateRetriever(client)
		retriever = wr
		monitor.RegisterService(fallback.VectorServiceName, wr.Ping, breakerCfg)
	}
	monitor.RegisterService(fallback.LLMServiceName, func(ctx context.Context) error {
		// A generation probe would burn tokens on every poll round.
		// Real failures reach the breaker through live traffic.
		return nil
	}, breakerCfg)

	tracker := budget.NewTracker(budget.Config{
		DailyTokenLimit:   cfg.Budget.DailyTokenLimit,
		SessionTokenLimit: cfg.Budget.SessionTokenLimit,
	})

	// Budget limits are the only settings applied live; everything else
	// takes effect on restart.
	watcher.OnReload(func(next *config.Config) {
		tracker.SetLimits(budget.Config{
			DailyTokenLimit:   next.Budget.DailyTokenLimit,
			SessionTokenLimit: next.Budget.SessionTokenLimit,
		})
	})

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go monitor.Start(monitorCtx)
	go watcher.Run(monitorCtx)

	svc, err := services.NewGuidanceService(services.Deps{
		Registry:    registry,
		Safety:      personality.NewSafetyChecker(),
		Retriever:   retriever,
		Cache:       respCache,
		Budget:      tracker,
		Primary:     primary,
		Retry:       retry,
		Monitor:     monitor,
		Degradation: degradation,
		Analytics:   analytics,
		ResMetrics:  resMetrics,
		Metrics:     observability.NewGuidanceMetrics(),
		Logger:      logger,
		Options: services.Options{
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
			SearchLimit:  cfg.Weaviate.SearchLimit,
			MinCertainty: cfg.Weaviate.MinCertainty,
		},
	})
	if err != nil {
		log.Fatalf("failed to build the guidance service: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("guidance-service"))
	routes.SetupRoutes(router, routes.Deps{
		Service:        svc,
		Registry:       registry,
		Monitor:        monitor,
		Breakers:       breakers,
		Degradation:    degradation,
		Analytics:      analytics,
		RequestsPerMin: cfg.Server.RequestsPerMin,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		slog.Info("starting the guidance server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down the guidance server")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	monitor.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
}
