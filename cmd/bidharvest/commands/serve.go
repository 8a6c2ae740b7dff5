package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/internal/metrics"
	"github.com/jmylchreest/bidharvest/internal/scheduler"
	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

const shutdownTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run extractions on a schedule",
	Long: `Run one extraction immediately, then again on every tick of a cron
schedule. A tick that arrives while a run is still going is skipped.
Each run's bids are upserted into --store. Prometheus metrics are served
on --metrics-addr at /metrics.

Examples:
  bidharvest serve --schedule "@every 6h" --store sqlite://bids.db
  bidharvest serve --schedule "0 7 * * 1-5" --store postgres://harvest@db/bids`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addHarvestFlags(serveCmd)

	flags := serveCmd.Flags()
	flags.String("schedule", "@every 6h", "cron spec or descriptor")
	flags.String("metrics-addr", ":9090", "listen address for /metrics and /healthz (empty disables)")
	_ = viper.BindPFlag("schedule", flags.Lookup("schedule"))
	_ = viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(cfg.Portal)
	h, err := harvest.New(cfg, harvest.WithObserver(m))
	if err != nil {
		return err
	}
	dsn := viper.GetString("store")
	if dsn == "" {
		logger.Warn("no --store configured, bids are only logged")
	}

	job := func(ctx context.Context) error {
		res, err := h.Run(ctx, harvest.Options{
			Credentials: loadCredentials(viper.GetViper()),
			Debug:       viper.GetBool("screenshots"),
		})
		if err != nil {
			return err
		}
		logSummary(res)
		if dsn == "" {
			return nil
		}
		r, err := persist(ctx, dsn, res)
		if err != nil {
			return err
		}
		m.ObserveStore(r)
		return nil
	}

	sched, err := scheduler.New(viper.GetString("schedule"), job)
	if err != nil {
		return err
	}

	var srv *http.Server
	if addr := viper.GetString("metrics_addr"); addr != "" {
		srv = newMetricsServer(addr, m)
		go func() {
			logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
				cancel()
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	sched.Stop(stopCtx)
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
