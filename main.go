package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bot-core/internal/allocator"
	"bot-core/internal/api"
	"bot-core/internal/bot"
	"bot-core/internal/events"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/internal/monitor"
	"bot-core/internal/notify"
	"bot-core/internal/profit"
	"bot-core/internal/wallet"
	"bot-core/pkg/config"
	"bot-core/pkg/crypto"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	log.Printf(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	metrics := monitor.NewSystemMetrics()
	log.Printf(i18n.Get("SystemMetricsInit"))

	lgr, err := ledger.New(database, bus, 5*time.Second)
	if err != nil {
		log.Fatalf("ledger init failed: %v", err)
	}

	// Periodic integrity sweep; a wallet that fails it stays halted until
	// someone reconciles it by hand.
	reconciler := ledger.NewReconciler(lgr, database, cfg.ReconcileInterval)
	reconciler.Start(ctx)

	kycSvc := kyc.NewService(database, bus)

	deriver, err := crypto.NewAddressDeriver(cfg.AddressSecret)
	if err != nil {
		log.Fatalf("address deriver init failed: %v", err)
	}
	alloc := allocator.New(database, deriver, bus)

	// Template catalog: YAML file is the source of truth, synced at startup.
	if templates, err := bot.LoadTemplates(cfg.TemplatesPath); err != nil {
		log.Printf(i18n.Get("TemplateLoadFailed"), err)
	} else if err := bot.SyncTemplatesToDB(database.DB, templates); err != nil {
		log.Printf(i18n.Get("TemplateSyncFailed"), err)
	} else {
		log.Printf(i18n.Get("TemplatesSynced"), len(templates))
	}

	engine := profit.NewEngine(database, bus, cfg.ProfitSeed, cfg.TickInterval)
	manager := bot.NewManager(database, lgr, engine, bus)
	if err := manager.LoadRunning(ctx); err != nil {
		log.Fatalf("reload running instances failed: %v", err)
	}
	engine.Start(ctx)

	wallets := wallet.NewService(database, lgr, bus, cfg.ReferralBonus)

	// Optional external notification sinks.
	var sinks []notify.Notifier
	if cfg.EnableRedisPubsub {
		sinks = append(sinks, notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisChannel))
	}
	if cfg.EnableTelegram && cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf(i18n.Get("TelegramInitFailed"), err)
		} else {
			sinks = append(sinks, tg)
		}
	}
	if len(sinks) > 0 {
		bridge := notify.NewBridge(bus, sinks...)
		bridge.Start(ctx,
			events.EventBotLaunched,
			events.EventBotStopped,
			events.EventWithdrawal,
			events.EventLedgerAlert,
			events.EventTierAdvanced,
		)
	}

	// Keep the running-instance gauge fresh.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SetRunningInstances(engine.Count())
			case <-ctx.Done():
				return
			}
		}
	}()

	server := api.NewServer(bus, database, lgr, wallets, manager, kycSvc, alloc, metrics,
		api.SystemMeta{TickInterval: cfg.TickInterval, Version: version}, cfg.JWTSecret)

	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf(i18n.Get("ShuttingDown"))
	cancel()
	for _, sink := range sinks {
		if closer, ok := sink.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}
