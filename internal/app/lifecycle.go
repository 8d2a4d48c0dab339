package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"larkgate/internal/config"
	"larkgate/pkg/logging"
)

// run serves HTTP until a signal arrives or ctx is cancelled.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
//
// Under systemd the unit is told READY=1 once the listener is bound and
// STOPPING=1 when shutdown starts. While running, edits to the config file
// re-apply the allowed CORS origins.
func run(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Broker.Server.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Server.Serve(listener)
	})

	g.Go(func() error {
		<-gctx.Done()
		sdNotify(daemon.SdNotifyStopping)
		if err := services.Server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if watchable(cfg.ConfigPath) {
		g.Go(func() error {
			err := config.Watch(gctx, cfg.ConfigPath, func(next config.BrokerConfig) {
				services.Server.SetAllowedOrigins(next.CORS.AllowedOrigins)
			})
			if err != nil {
				logging.Error("Config", err, "Config hot reload disabled")
			}
			return nil
		})
	}

	sdNotify(daemon.SdNotifyReady)
	logging.Info("Bootstrap", "larkgate %s ready on %s. Press Ctrl+C to stop.", cfg.Version, listener.Addr())

	return g.Wait()
}

// watchable reports whether the directory holding path exists.
func watchable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(filepath.Dir(path))
	return err == nil && info.IsDir()
}

func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Bootstrap", "sd_notify %q failed: %v", state, err)
		return
	}
	if sent {
		logging.Debug("Bootstrap", "Sent sd_notify %q", state)
	}
}
