package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polywhale/config"
	"github.com/alejandrodnm/polywhale/internal/adapters/notify"
	"github.com/alejandrodnm/polywhale/internal/adapters/polymarket"
	"github.com/alejandrodnm/polywhale/internal/adapters/report"
	"github.com/alejandrodnm/polywhale/internal/adapters/storage"
	"github.com/alejandrodnm/polywhale/internal/application/performance"
	"github.com/alejandrodnm/polywhale/internal/application/pipeline"
	"github.com/alejandrodnm/polywhale/internal/application/resolution"
	"github.com/alejandrodnm/polywhale/internal/application/schedule"
	"github.com/alejandrodnm/polywhale/internal/application/signals"
	"github.com/alejandrodnm/polywhale/internal/application/tracker"
	"github.com/alejandrodnm/polywhale/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one update (resolution, ranking, signals) and exit")
	quick := flag.Bool("quick", false, "with -once: quick resolution pass (recent markets only)")
	track := flag.Bool("track", false, "run one tracker cycle and exit")
	discover := flag.Bool("discover", false, "discover whales from the trade tape and exit")
	stats := flag.Bool("stats", false, "print ledger stats and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	logger := slog.Default()

	slog.Info("polywhale starting",
		"config", *configPath,
		"db", cfg.Storage.DSN,
		"once", *once,
		"quick", *quick,
		"track", *track,
		"discover", *discover,
		"stats", *stats,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(polymarket.Config{
		CLOBBase:   cfg.API.CLOBBase,
		GammaBase:  cfg.API.GammaBase,
		DataBase:   cfg.API.DataBase,
		Timeout:    cfg.HTTPTimeout(),
		MaxRetries: cfg.API.MaxRetries,
		Logger:     logger,
	})

	console := notify.NewConsole()
	tg, err := notify.NewTelegram(notify.TelegramConfig{
		Token:     cfg.Notify.TelegramToken,
		APIServer: cfg.Notify.APIServer,
		Timeout:   cfg.Notify.Timeout(),
	}, logger)
	if err != nil {
		slog.Error("failed to create telegram notifier", "err", err)
		os.Exit(1)
	}
	var notifier ports.Notifier = tg
	if !tg.Enabled() {
		notifier = console
	}

	sink := report.NewJSONFile(cfg.Report.SnapshotPath, cfg.Report.ProgressPath)

	resolver := resolution.New(resolution.Config{
		QuickWindow:   cfg.Resolution.QuickWindow(),
		QuickLimit:    cfg.Resolution.QuickLimit,
		Delay:         cfg.Resolution.Delay(),
		PauseEvery:    cfg.Resolution.PauseEvery,
		Pause:         cfg.Resolution.Pause(),
		ProgressEvery: cfg.Resolution.ProgressEvery,
		Logger:        logger,
	}, store, client, sink)

	analyzer := performance.NewAnalyzer(performance.Config{
		MinResolved:    cfg.Analyzer.MinResolved,
		ActivityWindow: cfg.Analyzer.ActivityWindow(),
		ActivityTop:    cfg.Analyzer.ActivityTop,
		Logger:         logger,
	}, store)

	sigEngine := signals.New(signals.Config{
		MinWinRate:        cfg.Signals.MinWinRate,
		MinResolvedTrades: cfg.Signals.MinResolvedTrades,
		MinROI:            cfg.Signals.MinROI,
		RecentWindow:      cfg.Signals.RecentWindow(),
		MinEdge:           cfg.Signals.MinEdge,
		MaxImpliedProb:    cfg.Signals.MaxImpliedProb,
		MaxROIMultiplier:  cfg.Signals.MaxROIMultiplier,
		PriceDelay:        cfg.Signals.PriceDelay(),
		Logger:            logger,
	}, store, client)

	trk := tracker.New(tracker.Config{
		MinWhaleVolume:  cfg.Tracker.MinWhaleVolume,
		MinPositionSize: cfg.Tracker.MinPositionSize,
		TapePages:       cfg.Tracker.TapePages,
		TapePageSize:    cfg.Tracker.TapePageSize,
		EnrichTop:       cfg.Tracker.EnrichTop,
		MaxWhales:       cfg.Tracker.MaxWhales,
		MarketListLimit: cfg.Tracker.MarketListLimit,
		IndexLimit:      cfg.Tracker.IndexLimit,
		CheckpointBatch: cfg.Tracker.CheckpointBatch,
		PriceMoveAlert:  cfg.Tracker.PriceMoveAlert,
		Delay:           cfg.Tracker.Delay(),
		CheckpointEvery: cfg.Tracker.CheckpointEvery,
		DiscoveryEvery:  cfg.Tracker.DiscoveryEvery,
		Destination:     cfg.Notify.ChatID,
		Logger:          logger,
	}, tracker.Deps{
		Ledger:    store,
		Seen:      store,
		Trades:    client,
		Positions: client,
		Markets:   client,
		Notifier:  notifier,
	})

	pipe := pipeline.New(pipeline.Config{
		MinConsensusAlert: cfg.Notify.MinConsensusAlert,
		ResolutionAlerts:  cfg.Notify.ResolutionAlerts,
		SnapshotOpen:      cfg.Report.SnapshotOpen,
		SnapshotResolved:  cfg.Report.SnapshotResolved,
		Destination:       cfg.Notify.ChatID,
		Logger:            logger,
	}, pipeline.Deps{
		Resolver: resolver,
		Ranker:   analyzer,
		Signals:  sigEngine,
		Ledger:   store,
		Notifier: notifier,
		Report:   sink,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *stats:
		st, err := resolver.Stats(ctx)
		if err != nil {
			slog.Error("stats failed", "err", err)
			os.Exit(1)
		}
		nm, err := store.NewMarketStats(ctx)
		if err != nil {
			slog.Error("new market stats failed", "err", err)
			os.Exit(1)
		}
		console.PrintStats(st, nm)

	case *discover:
		n, err := trk.DiscoverWhales(ctx)
		if err != nil {
			slog.Error("whale discovery failed", "err", err)
			os.Exit(1)
		}
		slog.Info("whale discovery done", "new", n)

	case *track:
		if _, err := trk.RunCycle(ctx); err != nil {
			slog.Error("tracker cycle failed", "err", err)
			os.Exit(1)
		}

	case *once:
		res, err := pipe.RunUpdate(ctx, *quick)
		console.PrintRunSummary(res.Summary)
		console.PrintRanking(res.Report)
		console.PrintSignals(res.Signals, res.Consensus)
		if err != nil || !res.Success {
			slog.Error("update finished with errors", "err", err)
			os.Exit(1)
		}

	default:
		if err := runDaemon(ctx, cfg.Schedule, trk, pipe, logger); err != nil {
			slog.Error("scheduler exited with error", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("polywhale stopped cleanly")
}

// runDaemon registra los jobs periódicos y bloquea hasta que ctx se cancele.
func runDaemon(ctx context.Context, sc config.ScheduleConfig, trk *tracker.Tracker, pipe *pipeline.Pipeline, logger *slog.Logger) error {
	// el primer escaneo de mercados solo indexa: no avisar del catálogo entero
	if n, err := trk.IndexExistingMarkets(ctx); err != nil {
		slog.Warn("initial market index failed", "err", err)
	} else {
		slog.Info("existing markets indexed", "added", n)
	}

	runner := schedule.NewRunner(ctx, logger)
	jobs := []struct {
		name string
		spec string
		job  schedule.Job
	}{
		{"tracker", sc.TrackerCycle, func(ctx context.Context) error {
			_, err := trk.RunCycle(ctx)
			return err
		}},
		{"quick-update", sc.QuickUpdate, func(ctx context.Context) error {
			_, err := pipe.RunUpdate(ctx, true)
			return err
		}},
		{"full-update", sc.FullUpdate, func(ctx context.Context) error {
			_, err := pipe.RunUpdate(ctx, false)
			return err
		}},
	}
	for _, j := range jobs {
		if j.spec == config.JobDisabled {
			slog.Info("job disabled", "job", j.name)
			continue
		}
		if _, err := runner.Add(j.name, j.spec, j.job); err != nil {
			return err
		}
	}
	if runner.Len() == 0 {
		return errors.New("no jobs scheduled")
	}

	runner.Start()
	<-ctx.Done()
	runner.Stop()
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
