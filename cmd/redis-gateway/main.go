package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/actionsystem/redis-gateway/internal/api"
	"github.com/actionsystem/redis-gateway/internal/config"
	"github.com/actionsystem/redis-gateway/internal/log"
	"github.com/actionsystem/redis-gateway/internal/metrics"
	"github.com/actionsystem/redis-gateway/internal/poller"
	"github.com/actionsystem/redis-gateway/pkg/gateway"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redis-gateway",
		Short: "Connect to Redis and print a key's integer value on an interval",
		Long: `redis-gateway waits for a Redis server to accept connections, checks the
credentials, then prints the value of one key until interrupted.

Every flag can also be given through its environment variable; an explicit
flag wins over the environment.`,
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd)
		},
	}
	cmd.Flags().AddFlagSet(config.FlagSet())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger = log.WithInstance(logger)

	metricsObj, metricsHandler, err := metrics.Setup("redis-gateway")
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}

	gw, err := gateway.New(ctx, gateway.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		Timeout:  cfg.Redis.Timeout,
		Logger:   logger,
		Metrics:  metricsObj,
	})
	if err != nil {
		return err
	}
	defer gw.Close()

	logger.Infow(gw.String(), "env", cfg.Env, "key", cfg.Redis.LimitKey)

	p := poller.New(gw, cfg.Redis.LimitKey, cfg.PollInterval, cmd.OutOrStdout(), logger)

	if cfg.MetricsAddr != "" {
		handler := api.NewHandler(gw, p, logger)
		router := handler.Routes(api.NewMiddleware(logger, metricsObj), metricsHandler, cfg.RateLimitRPM)

		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go serve(srv, logger)
		defer shutdown(srv, logger)
	}

	return p.Run(ctx)
}

func serve(srv *http.Server, logger *zap.SugaredLogger) {
	logger.Infow("Starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorw("HTTP server error", "error", err)
	}
}

func shutdown(srv *http.Server, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("HTTP server shutdown error", "error", err)
	}
}
