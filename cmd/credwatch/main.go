package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credwatch/internal/alert"
	"credwatch/internal/api"
	"credwatch/internal/dashboard"
	"credwatch/internal/intake"
	"credwatch/internal/metrics"
	"credwatch/internal/resolver"
	"credwatch/internal/rules"
	"credwatch/internal/store"
	"credwatch/internal/utils"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/credwatch.yaml", "Path to configuration file")
	flag.Parse()

	manager := utils.NewConfigManager(*configPath, logrus.StandardLogger())
	config, err := manager.Load()
	if err != nil {
		logrus.Warnf("Failed to load config from %s, using defaults: %v", *configPath, err)
		config = manager.Current()
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)
	logger.Info("Starting credwatch monitoring engine")

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	st := store.NewMemoryStore(logger)
	seedStore(st, config)

	dispatcher := alert.NewDispatcher(st, alert.DispatcherOptions{
		Workers:       config.Dispatch.Workers,
		QueueSize:     config.Dispatch.QueueSize,
		RetryAttempts: config.Dispatch.RetryAttempts,
		RetryDelay:    time.Duration(config.Dispatch.RetryDelaySeconds) * time.Second,
		ShutdownGrace: time.Duration(config.Dispatch.ShutdownGraceSeconds) * time.Second,
	}, m, logger)

	engine := rules.NewEngine(st, dispatcher, m, logger)
	engine.SetRules(st.ListRules())

	in := intake.New(st, engine, config.Intake.MaxEventsPerMinute, m, logger)

	autoResolver := resolver.NewAutoResolver(st,
		time.Duration(config.Resolver.SweepIntervalSeconds)*time.Second, m, logger)
	retention := resolver.NewRetentionSweeper(st, engine,
		time.Duration(config.Retention.SweepIntervalSeconds)*time.Second,
		config.Retention.EventRetentionDays, config.Retention.AlertRetentionDays, logger)

	aggregator := dashboard.NewAggregator(st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	go autoResolver.Run(ctx)
	go retention.Run(ctx)

	applyConfig := func(newConfig *utils.EngineConfig) error {
		if err := manager.Apply(newConfig); err != nil {
			return err
		}
		seedStore(st, newConfig)
		engine.SetRules(st.ListRules())
		in.SetRateCap(newConfig.Intake.MaxEventsPerMinute)
		return nil
	}

	watcher, err := utils.NewConfigWatcher(manager, func(newConfig *utils.EngineConfig) {
		seedStore(st, newConfig)
		engine.SetRules(st.ListRules())
		in.SetRateCap(newConfig.Intake.MaxEventsPerMinute)
		logger.Info("Configuration reloaded from file")
	}, logger)
	if err != nil {
		logger.Warnf("Config file watching disabled: %v", err)
	} else {
		go watcher.Run(ctx)
	}

	handlers := api.NewHandlers(st, in, aggregator, manager, applyConfig,
		func() { engine.SetRules(st.ListRules()) }, m, logger)
	router := api.NewRouter(handlers, registry)

	server := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on port %s", config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	cancel()
	dispatcher.Shutdown()
	logger.Info("Shutdown complete")
}

// seedStore loads the rules, channels and auto-resolve rules from the
// configuration into the store. Existing entries with the same IDs are
// replaced; entries created through the API are left alone.
func seedStore(st store.Store, config *utils.EngineConfig) {
	for _, ch := range config.Channels {
		st.PutChannel(ch)
	}
	for _, r := range config.Rules {
		st.PutRule(r)
	}
	for _, ar := range config.AutoResolve {
		st.PutAutoResolveRule(ar)
	}
}
