package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/medsupply/internal/config"
	"github.com/example/medsupply/internal/handlers"
	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/mirror"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/routes"
	"github.com/example/medsupply/internal/services"
	"github.com/example/medsupply/pkg/logger"
)

func main() {
	cfg := config.Load()
	appLog := logger.NewLogger()

	stores, err := repository.NewStores(cfg.DataDir, appLog)
	if err != nil {
		log.Fatalf("opening data directory: %v", err)
	}

	users := repository.NewUserRepository(stores.Users)
	orders := repository.NewOrderRepository(stores.Orders)
	codes := repository.NewReferralCodeRepository(stores.ReferralCodes)
	ledger := repository.NewLedgerRepository(stores.Ledger)
	prospects := repository.NewProspectRepository(stores.Prospects)
	settings := repository.NewSettingsRepository(stores.Settings)

	woo := integrations.NewWooClient(cfg.WooBaseURL, cfg.WooConsumerKey, cfg.WooConsumerSecret, appLog)
	stripe := integrations.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, appLog)
	shipstation := integrations.NewShipStationClient(cfg.ShipStationBaseURL, cfg.ShipStationKey, cfg.ShipStationSecret, appLog)

	// The relational mirror is optional; without a DSN the sync job
	// records every order as skipped and the system runs file-only.
	var relationalMirror integrations.RelationalMirror
	if cfg.DatabaseURL != "" {
		gormMirror, err := mirror.Connect(cfg.DatabaseURL, appLog)
		if err != nil {
			log.Fatalf("connecting relational mirror: %v", err)
		}
		relationalMirror = gormMirror
	}

	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, appLog)
	referralService := services.NewReferralService(users, codes, ledger, settings, appLog)
	orderService := services.NewOrderService(
		orders, users, settings, referralService,
		woo, stripe, shipstation, telegram,
		appLog,
	)
	syncService := services.NewSyncService(orders, relationalMirror, shipstation, cfg.SyncInterval, appLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	syncService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "MedSupply Backend",
		ErrorHandler: handlers.ErrorHandler(appLog),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, routes.Deps{
		Cfg:             cfg,
		Users:           users,
		Orders:          orders,
		Codes:           codes,
		Ledger:          ledger,
		Prospects:       prospects,
		Settings:        settings,
		OrderService:    orderService,
		ReferralService: referralService,
		SyncService:     syncService,
		Payments:        stripe,
		Log:             appLog,
	})

	go func() {
		<-ctx.Done()
		appLog.Info("shutting down")
		_ = app.Shutdown()
	}()

	appLog.WithField("port", cfg.AppPort).Info("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
