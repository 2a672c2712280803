package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wattbridge/internal/api"
	"wattbridge/internal/config"
	"wattbridge/internal/hub"
	"wattbridge/internal/sensor"
	"wattbridge/internal/session"
	"wattbridge/internal/store"
	"wattbridge/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wattbridge",
		Short:         "Exercise-bike power telemetry bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newWatchCmd())
	root.AddCommand(newExportCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: sensor ingest, session lifecycle, HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	feed := hub.New(log)
	defer feed.Close()

	ctrl := session.NewController(session.Config{
		ThresholdW: cfg.ThresholdW,
		Debounce:   cfg.Debounce,
		AutoEnd:    cfg.AutoEnd,
	}, st, feed, log)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingest := sensor.New(sensor.Config{
		BrokerURL: cfg.MQTT.URL,
		Topic:     cfg.MQTT.Topic,
		ClientID:  cfg.MQTT.ClientID,
	}, ctrl, feed, log)
	if err := ingest.Start(ctx); err != nil {
		return fmt.Errorf("starting sensor ingest: %w", err)
	}

	srv := api.New(ctrl, st, feed, log, api.Options{
		AdminPIN:       cfg.AdminPIN,
		DonationFactor: cfg.DonationFactor,
		BackupDir:      cfg.BackupDir,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "broker", cfg.MQTT.URL, "topic", cfg.MQTT.Topic)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Finalize any running session before the store closes.
	if _, err := ctrl.End(session.ReasonAPI); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		log.Error("ending session on shutdown", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ingest.Close(shutdownCtx); err != nil {
		log.Warn("closing sensor ingest", "error", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}

func newWatchCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal display for a running bridge",
		RunE: func(_ *cobra.Command, _ []string) error {
			return tui.RunWatch(serverURL)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "bridge base URL")
	return cmd
}

func newExportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export [date]",
		Short: "Write finished sessions for a day as CSV to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			date := time.Now().Format("2006-01-02")
			if len(args) == 1 {
				if _, err := time.Parse("2006-01-02", args[0]); err != nil {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
				}
				date = args[0]
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			sessions, err := st.FinishedByDate(date)
			if err != nil {
				return err
			}
			return store.WriteCSV(cmd.OutOrStdout(), sessions)
		},
	}
}
