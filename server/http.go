package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"checkin-pipeline/capture"
	"checkin-pipeline/config"
	"checkin-pipeline/constant"
	checkinHandler "checkin-pipeline/handler"
	"checkin-pipeline/pkg/rabbitmq"
	"checkin-pipeline/probe"
	"checkin-pipeline/quota"
	"checkin-pipeline/repository"
	"checkin-pipeline/service"
	"checkin-pipeline/storage"
	"checkin-pipeline/transcode"
	"checkin-pipeline/upload"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	backend := storage.NewMinIO(cfg.Storage, cfg.MinIOBucket, cfg.Pipeline.PublicBaseURL)
	if err := backend.EnsureBucket(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("EnsureBucket")
	}

	var notifiers []service.Notifier
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn, saved events disabled")
	} else {
		notifiers = append(notifiers, rabbitmq.NewPublisher(conn, cfg.Queue))
	}

	var quotaService upload.QuotaService
	if cfg.Quota.URL != "" {
		quotaService = quota.NewClient(cfg.Quota.URL, time.Duration(cfg.Quota.TimeoutSeconds)*time.Second)
	}

	repo := repository.NewRepo(cfg.DB)
	pipeline := service.NewPipeline(service.Dependencies{
		Provider: capture.NewV4L2Provider(),
		Prober: probe.New(probe.Options{
			URL:                  cfg.Probe.URL,
			Timeout:              time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
			FallbackBytesPerSec:  cfg.Probe.FallbackBytesPerSec,
			SlowBelowBytesPerSec: cfg.Probe.SlowBelowBytesPerSec,
		}),
		Compressor: transcode.New(transcode.Options{
			TriggerBytes:      cfg.Pipeline.CompressTriggerBytes,
			MaxWidth:          cfg.Pipeline.MaxWidth,
			MaxHeight:         cfg.Pipeline.MaxHeight,
			SlowFPS:           cfg.Pipeline.SlowFPS,
			NormalFPS:         cfg.Pipeline.NormalFPS,
			SlowBitrateKbps:   cfg.Pipeline.SlowBitrateKbps,
			NormalBitrateKbps: cfg.Pipeline.NormalBitrateKbps,
			WorkDir:           cfg.Pipeline.WorkDir,
		}),
		Coordinator: upload.NewCoordinator(backend, quotaService, cfg.Pipeline.MaxUploadBytes),
		Store:       repo,
		Notifiers:   notifiers,
		Constraints: capture.Constraints{
			MaxWidth:  cfg.Pipeline.MaxWidth,
			MaxHeight: cfg.Pipeline.MaxHeight,
			Audio:     true,
		},
		PreviewDir: cfg.Pipeline.PreviewDir,
	})
	// The camera must never stay active past shutdown, whatever step is
	// pending when the signal arrives.
	defer pipeline.Unmount(ctx)

	r := gin.Default()
	addHealth(r)
	checkinHandler.NewHandler(pipeline).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
