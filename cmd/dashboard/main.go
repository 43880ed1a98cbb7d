package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/broadcast"
	"github.com/cyfung/portfolio-helper-sub000/internal/config"
	"github.com/cyfung/portfolio-helper-sub000/internal/loader"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/margin"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/nav"
	"github.com/cyfung/portfolio-helper-sub000/internal/quote"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
	"github.com/cyfung/portfolio-helper-sub000/internal/server"
	"github.com/joho/godotenv"
)

// nav polls this often while inside a fund's publication window
const _navWindowInterval = 1 * time.Minute

func main() {
	dotenvErr := godotenv.Load()

	cfg := config.NewConfigFromEnv().Setup()

	zapLogger, loggerSync, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if dotenvErr != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dashCfg, err := config.LoadDashboardConfig(cfg.ConfigFile)
	if err != nil {
		zapLogger.Warnf("%s: can't load dashboard cfg %s, using defaults", err, cfg.ConfigFile)
		dashCfg = config.DashboardConfig{}
		if err := dashCfg.ValidateAndSetup(); err != nil {
			zapLogger.Fatalf("%s: can't setup default dashboard cfg", err)
		}
	}

	hub := broadcast.NewHub(cfg.StreamBuffer, zapLogger)

	quoteService := quote.NewService(dashCfg.QuoteBaseURL, zapLogger)
	quotePoller := quote.NewPoller(quoteService, zapLogger)
	quotePoller.OnUpdate(func(symbol string, q model.MarketQuote) {
		hub.Publish(model.NewPriceUpdate(symbol, q))
	})

	navRegistry := nav.NewRegistry(dashCfg.NavProviders, zapLogger)
	navService := nav.NewService(navRegistry, zapLogger)
	navPoller := nav.NewPoller(navService, _navWindowInterval, cfg.NavPollInterval(), zapLogger)
	navPoller.OnUpdate(func(symbol string, r model.NavRecord) {
		hub.Publish(model.NewNavUpdate(symbol, r))
	})

	marginService := margin.NewService(dashCfg.Margin, cfg.MarginRefreshCooldown(), zapLogger)
	marginPoller := margin.NewPoller(marginService, zapLogger)

	reg := registry.NewRegistry()
	manager := loader.NewManager(
		cfg.DataDir,
		dashCfg.PortfolioNames,
		cfg.DebounceWindow(),
		reg,
		quotePoller,
		cfg.QuotePollInterval(),
		navPoller,
		cfg.NavPollInterval(),
		navRegistry.Filter,
		hub,
		zapLogger,
	)

	if err := manager.Discover(); err != nil {
		zapLogger.Fatalf("%s: can't discover portfolios", err)
	}
	if err := manager.WatchAll(); err != nil {
		zapLogger.Fatalf("%s: can't set up file watchers", err)
	}

	manager.StartPolling()
	if dashCfg.Margin.URL != "" {
		marginPoller.Start([]string{margin.PollKey}, cfg.MarginPollInterval())
	} else {
		zapLogger.Infof("no margin rate source configured")
	}

	api := server.NewAPI(reg, quotePoller, navPoller, marginService, hub, zapLogger)
	httpServer := server.NewHTTPServer(ctx, cfg.Port, api.Routes())

	zapLogger.Infof("dashboard listening on :%s", cfg.Port)
	if err := httpServer.Run(ctx); err != nil {
		zapLogger.Errorf("%s: server stopped", err)
	}

	zapLogger.Infof("start graceful shutdown")
	manager.Stop()
	quotePoller.Shutdown()
	navPoller.Shutdown()
	marginPoller.Shutdown()
}
