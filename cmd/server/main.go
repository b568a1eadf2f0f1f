package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/captions/internal/app"
	"github.com/lukasbauer/captions/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := app.LoadConfigFromEnv()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		logger = zap.NewExample().Sugar()
		logger.Warnf("invalid logging config, using defaults: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ApplyConfigFile(cfg.CaptionsConfig); err != nil {
		logger.Fatalf("load captions config: %v", err)
	}

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2, // 20% of requests for performance monitoring
			Environment:      getEnvironment(),
		})
		if err != nil {
			logger.Errorf("sentry init failed: %v", err)
		} else {
			logger.Infof("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatalf("init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bind before joining: the token endpoint may be served by this process
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}

	if err := a.Run(ctx, ln); err != nil {
		logger.Errorf("serve: %v", err)
	}
	logger.Infof("shutting down")
	_ = a.Close()
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
