// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jinterlante1206/AleutianTutor/pkg/logging"
	"github.com/jinterlante1206/AleutianTutor/services/llm"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/engine"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/observability"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/research"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/routes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/sessions"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/store"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/toolcall"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/video"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("tutor-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildLLMClient selects the generation backend from LLM_BACKEND_TYPE.
func buildLLMClient() (llm.LLMClient, error) {
	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "claude", "anthropic":
		slog.Info("Using Anthropic (Claude) LLM backend")
		return llm.NewAnthropicClient()
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to openai")
		return llm.NewOpenAIClient()
	}
}

// buildStore connects the student-memory store. Unset REDIS_ADDR falls back
// to in-process memory, which keeps single-node installs dependency-free.
func buildStore(ctx context.Context) store.KeyValueStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		slog.Info("REDIS_ADDR not set, using in-process student memory")
		return store.NewMemoryStore()
	}
	rs, err := store.NewRedisStore(ctx, addr)
	if err != nil {
		slog.Error("Redis unavailable, falling back to in-process student memory",
			"addr", addr, "error", err)
		return store.NewMemoryStore()
	}
	slog.Info("Connected to Redis student memory", "addr", addr)
	return rs
}

func main() {
	port := os.Getenv("TUTOR_PORT")
	if port == "" {
		port = "12240"
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("TUTOR_LOG_DIR"),
		Service: "tutor",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	reg := phrases.MustLoad()

	llmClient, err := buildLLMClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	var videoProvider video.Provider
	if videoURL := os.Getenv("VIDEO_SERVICE_URL"); videoURL != "" {
		videoProvider = video.NewHTTPClient(videoURL)
	} else {
		slog.Info("VIDEO_SERVICE_URL not set, video suggestions disabled")
	}

	var researchProvider research.Provider
	if researchURL := os.Getenv("RESEARCH_SERVICE_URL"); researchURL != "" {
		researchProvider = research.NewHTTPClient(researchURL)
	} else {
		slog.Info("RESEARCH_SERVICE_URL not set, web research disabled")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sessionRegistry := sessions.NewRegistry(sessions.Config{
		IdleTTL:        30 * time.Minute,
		TurnsPerMinute: 20,
	})
	sessionRegistry.StartSweeper(ctx, time.Minute)

	eng := engine.New(engine.Config{
		Adapter:  toolcall.NewAdapter(llmClient, videoProvider, reg),
		Research: researchProvider,
		Memory:   buildStore(ctx),
		Registry: reg,
		Metrics:  observability.NewTurnMetrics(),
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	router := gin.Default()
	router.Use(otelgin.Middleware("tutor-service"))

	routes.SetupRoutes(router, eng, sessionRegistry, os.Getenv("TUTOR_API_KEY"))

	log.Println("Starting the tutor server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
