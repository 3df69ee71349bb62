package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/querybroker/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, MCP tools and prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			listenAddr, err := cmd.Flags().GetString("listen-addr")
			if err != nil {
				return fmt.Errorf("failed to get listen-addr flag: %w", err)
			}
			if listenAddr == "" {
				listenAddr = cfg.ListenAddr
			}
			metricsAddr, err := cmd.Flags().GetString("metrics-addr")
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(log, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("failed to close broker components", "error", err)
				}
			}()

			if metricsAddr != "off" {
				api.BuildInfo.WithLabelValues(info.Version, info.Commit, info.Date).Set(1)
				metricsListener, err := net.Listen("tcp", metricsAddr)
				if err != nil {
					return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					log.Info("Prometheus metrics server listening", "address", metricsListener.Addr().String())
					if err := metricsSrv.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("Failed to serve prometheus metrics", "error", err)
						cancel()
					}
				}()
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = metricsSrv.Shutdown(shutdownCtx)
				}()
			}

			srv, err := api.New(api.Config{
				Logger:         log,
				Broker:         a.broker,
				Registry:       a.registry,
				Pinger:         a.pool,
				Version:        info.Version,
				Production:     cfg.IsProduction(),
				AdminToken:     cfg.AdminToken,
				CORSOrigins:    cfg.CORSOrigins,
				RequestTimeout: cfg.RequestTimeout,
			})
			if err != nil {
				return fmt.Errorf("failed to create api server: %w", err)
			}

			listener, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("failed to create listener: %w", err)
			}
			log.Info("querybroker: starting", "env", cfg.Env, "targets", len(a.registry.List()), "delegating", a.synth.Delegating())

			return srv.Serve(ctx, listener)
		},
	}
	cmd.Flags().String("listen-addr", "", "address for the HTTP API (default from QB_LISTEN_ADDR or :8080)")
	cmd.Flags().String("metrics-addr", "", "address for prometheus metrics, or \"off\" (default from QB_METRICS_ADDR or :2112)")
	return cmd
}
