package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tradlet-core/internal/api"
	"tradlet-core/internal/archive"
	"tradlet-core/internal/exec"
	"tradlet-core/internal/md"
	"tradlet-core/internal/monitor"
	"tradlet-core/internal/tradlet"
	"tradlet-core/pkg/config"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

func main() {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("configuration load failed")
	}
	log := newLogger(cfg.App.LogLevel)
	log.Info().Str("name", cfg.App.Name).Str("env", cfg.App.Env).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := archive.Open(cfg.Archive.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("archive open failed")
	}
	defer store.Close()

	// Exec reports are routed back to the owning group's worker queue.
	engines := make(map[string]*tradlet.Engine)
	gw := exec.NewSimGateway(func(rep exec.Report) {
		if e, ok := engines[rep.GroupID]; ok {
			e.QueueReport(rep)
		}
	}, 50*time.Millisecond, log)

	var engineList []*tradlet.Engine
	for _, gc := range cfg.Groups {
		groupCfg, err := tradlet.ParseGroupText(gc.ID, gc.Text)
		if err != nil {
			log.Fatal().Err(err).Str("group", gc.ID).Msg("group descriptor rejected")
		}
		group := tradlet.NewGroup(groupCfg, gw, log)
		group.SetOnTerminal(func(rec tradlet.Record) {
			if err := store.SaveTerminal(group.ID(), rec); err != nil {
				log.Error().Err(err).Str("playbook", rec.ID).Msg("archive write failed")
			}
		})
		engine := tradlet.NewEngine(group, log)
		engines[gc.ID] = engine
		engineList = append(engineList, engine)
		engine.Start()
		defer engine.Stop()
		log.Info().Str("group", gc.ID).Stringer("state", group.State()).Msg("group engine started")
	}

	dispatcher := tradlet.NewDispatcher(engineList, cfg.Engine.NoopTimeout.Std(), log)
	go dispatcher.Run(ctx)

	if cfg.Feed.URL != "" {
		feed := md.NewFeed(md.FeedConfig{
			URL:           cfg.Feed.URL,
			Instruments:   cfg.Feed.Instruments,
			ReconnectWait: cfg.Feed.ReconnectWait.Std(),
		}, log)
		feed.AddListener(dispatcher)
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("market data feed stopped")
			}
		}()
	} else {
		log.Warn().Msg("no feed configured, running without market data")
	}

	if cfg.App.MetricsAddr != "" {
		monitor.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics listening")
	}

	server := api.NewServer(engineList, store, log)
	go func() {
		if err := server.Start(cfg.App.APIAddr); err != nil {
			log.Fatal().Err(err).Msg("api server error")
		}
	}()
	log.Info().Str("addr", cfg.App.APIAddr).Msg("api listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")
}
