package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/painel-alugueis/painel/internal/api"
	"github.com/painel-alugueis/painel/internal/audit"
	"github.com/painel-alugueis/painel/internal/bus"
	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/config"
	"github.com/painel-alugueis/painel/internal/dataservice"
	"github.com/painel-alugueis/painel/internal/http"
	"github.com/painel-alugueis/painel/internal/purge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := api.NewClient(cfg.BackendURL, api.Options{
		Timeout:       cfg.HTTPTimeout(),
		RetryMax:      cfg.RetryMax,
		HealthPath:    cfg.HealthPath,
		HealthTimeout: cfg.HealthTimeout(),
	})

	opts := dataservice.Options{}
	if cfg.BusEnabled() {
		redisClient := bus.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		b, err := bus.NewRedis(redisClient, cfg.RedisChannel)
		if err != nil {
			log.Fatal(err)
		}
		opts.Bus = b
	}
	if cfg.AuditEnabled() {
		recorder, err := newAuditRecorder(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		opts.Audit = recorder
	}

	store := cache.NewMemory(cfg.CacheTTL(), nil)
	data := dataservice.New(backend, store, opts)

	sub, err := data.Listen(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer sub.Close()

	handler := httpx.NewHandler(data, backend)
	purgeHandler := &purge.Handler{Data: data}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == purge.MethodPurge {
			purgeHandler.ServeHTTP(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	}))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("listening", "addr", cfg.ListenAddr, "backend", cfg.BackendURL, "cacheTTL", cfg.CacheTTL(),
		"bus", cfg.BusEnabled(), "audit", cfg.AuditEnabled())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func setupLogging(cfg config.Config) {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})))
}

func newAuditRecorder(ctx context.Context, cfg config.Config) (*audit.S3Recorder, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})
	return audit.NewS3Recorder(cfg.S3Bucket, cfg.S3Prefix, s3Client), nil
}
