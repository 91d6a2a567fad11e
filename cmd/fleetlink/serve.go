// File: cmd/fleetlink/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/fleetlink/control"
	"github.com/momentics/fleetlink/internal/auth"
	"github.com/momentics/fleetlink/internal/config"
	"github.com/momentics/fleetlink/internal/files"
	"github.com/momentics/fleetlink/internal/logging"
	"github.com/momentics/fleetlink/internal/registry"
	"github.com/momentics/fleetlink/server"
	"github.com/momentics/fleetlink/transport"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, true)
		},
	}
}

// runServer wires every component from cfg and blocks until ctx is done or a
// component fails.
func runServer(ctx context.Context, cfg *config.Config, console bool) error {
	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		Console:    console,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	db := registry.New(registry.Config{ControllerSlots: cfg.Store.ControllerSlots}, logger.Named("registry"))
	fm, err := files.New(cfg.WorkDir, logger.Named("files"))
	if err != nil {
		return err
	}
	allow := auth.Disabled()
	if cfg.Auth.Enabled {
		if allow, err = auth.Load(cfg.Auth.AllowListFile, logger.Named("auth")); err != nil {
			return err
		}
	}
	metrics, err := control.NewMetrics()
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.ConfigFrom(cfg), db, fm,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithAllowList(allow),
	)
	if err != nil {
		return err
	}

	tln, err := transport.ListenTCP(ctx, cfg.TCP.Listen, transport.Options{ReuseAddr: true, KeepAlive: cfg.TCP.KeepAlive})
	if err != nil {
		return err
	}
	upc, err := transport.ListenUDP(ctx, cfg.UDP.Listen, transport.Options{ReuseAddr: true})
	if err != nil {
		_ = tln.Close()
		return err
	}
	logger.Info("server started",
		zap.Stringer("tcp", tln.Addr()),
		zap.Stringer("udp", upc.LocalAddr()),
		zap.String("work_dir", cfg.WorkDir))

	reloader := &control.Reloader{}
	reloader.Register("allowlist", func() error {
		_, err := allow.Reload()
		return err
	})

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return srv.ServeTCP(gctx, tln) })
	grp.Go(func() error { return srv.ServeUDP(gctx, upc) })
	grp.Go(func() error { return allow.Watch(gctx, cfg.Auth.ReloadInterval) })
	grp.Go(func() error { return watchHangup(gctx, reloader, logger) })

	if cfg.Log.ErrorFile != "" && cfg.Log.CounterFile != "" {
		errs, counters, release, err := control.OpenSnapshotFiles(cfg.Log.ErrorFile, cfg.Log.CounterFile)
		if err != nil {
			logger.Warn("counter snapshots disabled", zap.Error(err))
		} else {
			defer release()
			w := control.NewSnapshotWriter(metrics, errs, counters, logger.Named("snapshot"))
			grp.Go(func() error { return w.Run(gctx, cfg.Log.SnapshotInterval) })
		}
	}

	if cfg.Metrics.Listen != "" {
		mln, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			logger.Warn("control endpoint disabled", zap.Error(err))
		} else {
			probes := control.NewDebugProbes()
			control.RegisterPlatformProbes(probes)
			srv.RegisterProbes(probes)
			grp.Go(func() error {
				return control.Serve(gctx, mln, control.Handler(metrics, probes), logger.Named("control"))
			})
		}
	}

	runErr := grp.Wait()
	logger.Info("stopping", zap.NamedError("cause", runErr))

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("sessions still open at exit", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("server: %w", runErr)
	}
	return nil
}

// watchHangup runs the reload hooks on every SIGHUP.
func watchHangup(ctx context.Context, r *control.Reloader, logger *zap.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := r.Trigger(); err != nil {
				logger.Warn("reload failed", zap.Error(err))
				continue
			}
			logger.Info("configuration reloaded")
		}
	}
}
