package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelops/gatekeeper"
	"github.com/sentinelops/gatekeeper/internal/config"
	"github.com/sentinelops/gatekeeper/server"
	auditfs "github.com/sentinelops/gatekeeper/service/audit/fs"
	daofs "github.com/sentinelops/gatekeeper/service/dao/decision/fs"
	trackerfs "github.com/sentinelops/gatekeeper/service/tracker/fs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatekeeper HTTP server",
	Long:  `Starts the decision submission and approval API, the expiry sweeper and the tracker retry worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		options := []gatekeeper.Option{
			gatekeeper.WithConfig(&gatekeeper.Config{
				Policy:        cfg.Policy,
				ApprovalTTL:   cfg.Approval.TTL,
				SweepInterval: cfg.Approval.SweepInterval,
			}),
		}

		if cfg.Storage.DataDir != "" {
			decisionDAO, err := daofs.New(filepath.Join(cfg.Storage.DataDir, "decisions"))
			if err != nil {
				return fmt.Errorf("opening decision store: %w", err)
			}
			auditLog, err := auditfs.New(filepath.Join(cfg.Storage.DataDir, "audit"))
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			options = append(options,
				gatekeeper.WithDecisionDAO(decisionDAO),
				gatekeeper.WithAuditLog(auditLog))
		}

		if cfg.Tracker.DropDir != "" {
			publisher, err := trackerfs.New(cfg.Tracker.DropDir)
			if err != nil {
				return fmt.Errorf("opening tracker drop dir: %w", err)
			}
			options = append(options, gatekeeper.WithPublisher(publisher))
		}

		if cfg.Tracing.Enabled {
			options = append(options,
				gatekeeper.WithTracing("gatekeeper", Version, cfg.Tracing.OutputFile))
		}

		service := gatekeeper.New(options...)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		service.Start(ctx)

		srv := server.New(server.Config{
			Port:     cfg.Server.Port,
			AllowAll: cfg.Server.AllowAll,
		}, service)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
