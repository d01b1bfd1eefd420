package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"packflow/cmd/server/config"
	"packflow/internal/fulfillment"
	"packflow/internal/ledger"
	"packflow/internal/observability"
	"packflow/internal/payments"
	"packflow/internal/realtime"
	"packflow/internal/reservation"
	sagapkg "packflow/internal/saga"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "packflow").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	serverCfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	paymentsCfg, err := config.LoadPayments()
	if err != nil {
		return err
	}
	auditCfg, err := config.LoadAudit()
	if err != nil {
		return err
	}

	stockStore, sagaStore, cleanupStores, err := buildStores(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupStores()

	holds, cleanupHolds, err := buildHoldRecorder(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupHolds()

	var audit sagapkg.AuditLog = sagapkg.NoopAuditLog{}
	if auditCfg.Path != "" {
		fileAudit, err := observability.NewFileAuditLog(auditCfg.Path)
		if err != nil {
			return err
		}
		defer fileAudit.Close()
		audit = fileAudit
		logger.Info().Str("path", auditCfg.Path).Msg("file audit trail enabled")
	}

	var gateway payments.Gateway = payments.NewApprovingGateway()
	if paymentsCfg.BreakerFailures > 0 {
		breaker := payments.NewCircuitBreaker(payments.CircuitBreakerConfig{
			MaxFailures:  paymentsCfg.BreakerFailures,
			ResetTimeout: paymentsCfg.BreakerCooldown,
		})
		gateway = payments.NewReliableGateway(gateway, breaker)
	}

	stockLedger := ledger.NewLedger(stockStore)
	logf := func(format string, args ...any) {
		logger.Warn().Msgf(format, args...)
	}

	hub := realtime.NewHub()
	go hub.Run()

	metrics := observability.NewMetrics()

	coordinator := sagapkg.NewCoordinator(sagapkg.Config{
		Reservations: reservation.NewService(stockLedger, holds, logf),
		Payments:     payments.NewProcessor(gateway, nil),
		Fulfillment:  fulfillment.NewService(),
		Store:        sagaStore,
		Notifier:     observability.NewLogNotifier(logger),
		Audit:        audit,
		Observer: sagapkg.Observers{
			observability.NewLogObserver(logger),
			observability.NewStageObserver(metrics),
			observability.NewPromObserver(prometheus.DefaultRegisterer),
			realtime.NewHubObserver(hub),
		},
		PaymentBaseDelay:      paymentsCfg.BaseDelay,
		PaymentAttemptTimeout: paymentsCfg.AttemptTimeout,
		Logf:                  logf,
	})

	api := &server{
		coordinator: coordinator,
		stock:       stockLedger,
		hub:         hub,
		logger:      logger,
		upgrader:    websocket.Upgrader{},
	}

	apiSrv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	obsMux := http.NewServeMux()
	obsMux.Handle("/metrics", observability.PromHandler())
	obsMux.Handle("/stats", observability.Handler(metrics))
	obsSrv := &http.Server{
		Addr:              serverCfg.ObsAddr,
		Handler:           obsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", serverCfg.Addr).Msg("api server listening")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.Info().Str("addr", serverCfg.ObsAddr).Msg("observability server listening")
		if err := obsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown")
		}
		if err := obsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("observability shutdown")
		}
		return nil
	case err := <-errCh:
		return err
	}
}
