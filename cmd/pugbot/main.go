package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jensholdgaard/assault-pugbot/internal/bot"
	"github.com/jensholdgaard/assault-pugbot/internal/bot/commands"
	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/gameserver"
	"github.com/jensholdgaard/assault-pugbot/internal/health"
	"github.com/jensholdgaard/assault-pugbot/internal/leader"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/store"
	"github.com/jensholdgaard/assault-pugbot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/assault-pugbot/internal/store/jsonfile"
	_ "github.com/jensholdgaard/assault-pugbot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "rating store opened", slog.String("driver", cfg.Database.Driver))

	ratings := rating.NewManager(repos.Ratings, repos.Events, clk, logger, tp.TracerProvider)
	api := gameserver.NewClient(cfg.GameServer, clk, logger, tp.TracerProvider)

	healthHandler := health.NewHandler(clk,
		health.Checker{Name: "store", Check: repos.Ping},
		health.Checker{Name: "gameserver", Check: func(ctx context.Context) error {
			_, err := api.List(ctx)
			return err
		}},
	)

	// The HTTP server runs on every replica; only the leader reports pugs.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.HandleFunc("/pugz", healthHandler.PugsHandler())

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: otelhttp.NewHandler(mux, "pugbot",
			otelhttp.WithTracerProvider(tp.TracerProvider),
			otelhttp.WithMeterProvider(tp.MeterProvider),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// runPugs is the work only the leader does. Pug state starts empty each
	// time leadership is gained.
	runPugs := func(ctx context.Context) {
		discordBot, botErr := bot.New(cfg.Discord, logger, tp.TracerProvider)
		if botErr != nil {
			logger.ErrorContext(ctx, "creating bot failed", slog.Any("error", botErr))
			return
		}

		pugs := match.NewManager(cfg.Pug, cfg.GameServer, match.Deps{
			API:            api,
			Ratings:        ratings,
			Events:         repos.Events,
			Notifier:       discordBot,
			Clock:          clk,
			Logger:         logger,
			TracerProvider: tp.TracerProvider,
			MeterProvider:  tp.MeterProvider,
			MapLists:       repos.MapLists,
		})
		handlers := commands.NewHandlers(cfg.Discord, pugs, ratings, cfg.GameServer.QueryTimeout, logger, tp.TracerProvider)

		if botErr = discordBot.Start(ctx, handlers); botErr != nil {
			logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
			return
		}

		for _, ch := range cfg.Pug.Channels {
			if _, enableErr := pugs.Enable(ctx, ch); enableErr != nil {
				logger.ErrorContext(ctx, "enabling pug failed", slog.String("channel", ch), slog.Any("error", enableErr))
			}
		}

		healthHandler.SetReady(true, pugs)
		logger.InfoContext(ctx, "pugbot is running", slog.String("version", version), slog.Int("channels", len(pugs.Channels())))

		// Blocks until leadership is lost or the process is shutting down.
		pugs.Run(ctx)

		healthHandler.SetReady(false, nil)
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, runPugs, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		runPugs(ctx)
		logger.Info("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
