package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fgaction/internal/api"
	"fgaction/internal/bridge"
	"fgaction/internal/config"
	"fgaction/internal/logger"
	"fgaction/internal/scheduler"
	"fgaction/internal/sender"
	"fgaction/internal/service"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the supervisor daemon",
	Long:  `Run the configured actions, deliver expiration notices and serve the control API until stopped.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	var (
		mu     sync.Mutex
		reload func()
	)
	svc := service.NewService(service.Options{
		Name:        serviceName,
		StopTimeout: shutdownTimeout + 5*time.Second,
		OnReload: func() {
			mu.Lock()
			fn := reload
			mu.Unlock()
			if fn != nil {
				fn()
			}
		},
	}, func(ctx context.Context) error {
		cfg, lc, err := loadConfig(nil)
		if err != nil {
			return err
		}
		return serve(ctx, cfg, lc, func(fn func()) {
			mu.Lock()
			reload = fn
			mu.Unlock()
		})
	})

	if svc.IsService() {
		logger.SetServiceMode(true)
	}

	if err := svc.Run(context.Background()); err != nil {
		return err
	}
	log := logger.WithComponent("main")
	log.Info().Msg("fgaction stopped")
	return nil
}

// serve runs the daemon until ctx is cancelled. setReload receives the
// function that re-reads both config files on demand.
func serve(ctx context.Context, cfg *config.Config, lc *logger.Config, setReload func(func())) error {
	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("config", configPath).
		Str("logging", loggingPath).
		Msg("Starting fgaction")

	rt, err := newRuntime(ctx, cfg, lc)
	if err != nil {
		service.WriteStartupErrorFile(startupErrorLogDir, err)
		return err
	}

	if cfg.Expiration.Redis.Enabled {
		src, err := bridge.NewRedisSource(cfg.Expiration.Redis, cfg.SOCKSProxy)
		if err != nil {
			rt.close(context.Background())
			return err
		}
		defer src.Close()
		rt.sup.AddExpirationSource(src)
		log.Info().
			Str("address", cfg.Expiration.Redis.Address).
			Str("channel", cfg.Expiration.Redis.Channel).
			Msg("Redis expiration source configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	rt.sup.Start(gctx)

	sched := scheduler.New(rt.sup, cfg.Notification, cfg.Actions, nil)
	if err := sched.Start(gctx); err != nil {
		rt.close(context.Background())
		return err
	}

	if cfg.HTTP.Address != "" {
		srv := api.NewServer(cfg.HTTP.Address, api.NewHandler(rt.sup, sched, rt.metrics.Handler()))
		g.Go(func() error { return srv.Serve(gctx) })
	}

	applyLogging := func(newLC *logger.Config) {
		if err := logger.Init(*newLC); err != nil {
			log.Error().Err(err).Msg("Failed to update logging configuration")
			return
		}
		if fs, ok := rt.sink.(*sender.FileSender); ok {
			fs.SetConsole(newLC.Console)
		}
		log.Info().Bool("console", newLC.Console).Msg("Logging configuration updated")
	}
	applyConfig := func(newCfg *config.Config) {
		sched.Reload(newCfg.Actions)
	}

	cleanup := setupWatchers(applyConfig, applyLogging)
	defer cleanup()

	setReload(func() {
		newCfg, newLC, err := config.LoadSplit(configPath, loggingPath)
		if err != nil {
			log.Error().Err(err).Msg("Reload failed, keeping current configuration")
			return
		}
		applyLogging(newLC)
		applyConfig(newCfg)
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rt.close(shutdownCtx)
	return runErr
}

// setupWatchers starts hot-reload watchers for both config files and returns
// a function that stops them.
func setupWatchers(onConfig func(*config.Config), onLogging func(*logger.Config)) func() {
	log := logger.WithComponent("main")
	var watcherMu sync.Mutex
	var cleanups []func()

	start := func(name string, w *config.FileWatcher, err error) {
		if err != nil {
			log.Warn().Err(err).Str("watcher", name).Msg("Failed to create watcher, hot reload disabled")
			return
		}
		if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("watcher", name).Msg("Failed to start watcher")
			return
		}
		cleanups = append(cleanups, func() {
			if err := w.Stop(); err != nil {
				log.Error().Err(err).Str("watcher", name).Msg("Error stopping watcher")
			}
		})
	}

	cw, err := config.NewWatcher(configPath, func(c *config.Config) {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		log.Info().Msg("Applying configuration changes")
		onConfig(c)
	})
	start("config", cw, err)

	lw, err := config.NewLoggingWatcher(loggingPath, func(lc *logger.Config) {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		log.Info().Msg("Applying logging configuration changes")
		onLogging(lc)
	})
	start("logging", lw, err)

	return func() {
		for _, c := range cleanups {
			c()
		}
	}
}
