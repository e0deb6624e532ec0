package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fgaction/internal/action"
	"fgaction/internal/config"
	"fgaction/internal/executor"
	"fgaction/internal/logger"
	"fgaction/internal/metrics"
	"fgaction/internal/platform"
	"fgaction/internal/registry"
	"fgaction/internal/sender"
	"fgaction/internal/service"
	"fgaction/internal/strategy"
	"fgaction/internal/supervisor"
	"fgaction/internal/timediff"
)

// runtime is the wired supervisor stack shared by serve and run.
type runtime struct {
	cfg      *config.Config
	sender   sender.Sender
	sink     sender.Sender
	syncer   *timediff.Syncer
	registry *registry.Registry
	exec     executor.NativeExecutor
	sup      *supervisor.Supervisor
	prom     *prometheus.Registry
	metrics  *metrics.Metrics
	appState *supervisor.AppStateBroadcaster
}

// loadConfig changes into the install root for absolute config paths, loads
// both config files and initializes the logger. Failures are reported where
// an operator can find them before the logger exists.
func loadConfig(svc service.Service) (*config.Config, *logger.Config, error) {
	if filepath.IsAbs(configPath) {
		basePath := filepath.Dir(filepath.Dir(filepath.Dir(configPath)))
		if err := os.Chdir(basePath); err != nil {
			err = fmt.Errorf("failed to chdir to %s: %w", basePath, err)
			service.ReportStartupError(serviceName, err)
			return nil, nil, err
		}
	}

	if svc != nil && svc.IsService() {
		logger.SetServiceMode(true)
	}

	cfg, lc, err := config.LoadSplit(configPath, loggingPath)
	if err != nil {
		service.ReportStartup(serviceName, startupErrorLogDir, err)
		return nil, nil, err
	}

	if err := logger.Init(*lc); err != nil {
		service.ReportStartup(serviceName, startupErrorLogDir, err)
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, lc, nil
}

// newRuntime detects the platform and builds the executor matching the
// strategy the supervisor will choose by default.
func newRuntime(ctx context.Context, cfg *config.Config, lc *logger.Config) (*runtime, error) {
	log := logger.WithComponent("main")

	override, err := action.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("invalid Strategy: %w", err)
	}

	target, err := platform.Detect(ctx, cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}

	// Logging.json Console is the master switch for echoing status records.
	cfg.File.Console = lc.Console

	sink, err := sender.NewSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}
	logSender(cfg)

	snd := sink
	syncer := startClockSync(ctx, cfg)
	if syncer != nil {
		snd = sender.WithClock(sink, syncer.Now)
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(prom)
	if err != nil {
		if syncer != nil {
			syncer.Stop()
		}
		snd.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	reg := registry.New()
	rt := &runtime{
		cfg:      cfg,
		sender:   snd,
		sink:     sink,
		syncer:   syncer,
		registry: reg,
		prom:     prom,
		metrics:  m,
		appState: supervisor.NewAppStateBroadcaster(),
	}

	decision, selErr := strategy.Select(target, override)
	switch {
	case selErr != nil:
		log.Warn().Err(selErr).Str("target", target.String()).
			Msg("No native strategy for this platform, only in-process actions can run")
	case decision.Strategy == action.NativeHeadless:
		rt.exec = executor.NewHeadlessExecutor(reg.Allocate, snd, nil)
	case decision.Strategy == action.NativeDirect:
		rt.exec = executor.NewDirectExecutor(reg.Allocate, snd, clock.New(), cfg.Expiration.Budget)
	}
	if selErr == nil {
		log.Info().
			Str("target", target.String()).
			Str("strategy", decision.Strategy.String()).
			Bool("forced", decision.Forced).
			Str("reason", decision.Reason).
			Msg("Execution strategy selected")
	}

	rt.sup = supervisor.New(supervisor.Options{
		Target:   target,
		Override: override,
		Registry: reg,
		Executor: rt.exec,
		Sender:   snd,
		Metrics:  m,
		AppState: rt.appState,
	})
	rt.sup.SubscribeExpiration(func(e executor.Expiration) {
		log := logger.WithAction("main", uint64(e.ID))
		log.Warn().Str("reason", e.Reason).Time("at", e.At).Msg("Execution budget expired")
	})
	return rt, nil
}

// startClockSync aligns status timestamps with the Redis server clock when
// configured. A failed first measurement leaves local timestamps in place.
func startClockSync(ctx context.Context, cfg *config.Config) *timediff.Syncer {
	if cfg.Expiration.ClockSync <= 0 {
		return nil
	}
	log := logger.WithComponent("main")

	syncer, err := timediff.NewSyncer(cfg.Expiration.Redis, cfg.SOCKSProxy, cfg.Expiration.ClockSync)
	if err != nil {
		log.Warn().Err(err).Msg("Clock sync disabled")
		return nil
	}
	if err := syncer.Start(ctx); err != nil {
		syncer.Stop()
		log.Warn().Err(err).Msg("Clock sync disabled, using local time for status records")
		return nil
	}
	log.Info().
		Str("address", cfg.Expiration.Redis.Address).
		Dur("offset", syncer.Diff()).
		Dur("interval", cfg.Expiration.ClockSync).
		Msg("Status timestamps aligned with Redis clock")
	return syncer
}

func logSender(cfg *config.Config) {
	log := logger.WithComponent("main")
	switch strings.ToLower(cfg.SenderType) {
	case "file":
		log.Info().Str("file_path", cfg.File.FilePath).Bool("console", cfg.File.Console).Msg("Using file sender")
	case "kafkarest":
		log.Info().Str("kafkarest_addr", cfg.KafkaRest.Address).Str("topic", cfg.KafkaRest.Topic).Msg("Using KafkaRest sender")
	case "kafka":
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Using Kafka sender")
	default:
		log.Info().Msg("Status records are not published")
	}
}

// close force stops what is left and flushes the sender.
func (rt *runtime) close(ctx context.Context) {
	log := logger.WithComponent("main")
	if err := rt.sup.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Some actions failed to stop")
	}
	if rt.syncer != nil {
		rt.syncer.Stop()
	}
	if err := rt.sender.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close sender")
	}
}
