package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"msp-console/core/config"
	"msp-console/core/database"
	"msp-console/core/loader"
	"msp-console/core/lock"
	"msp-console/core/logger"
	"msp-console/core/middleware/auth"
	"msp-console/core/middleware/requestid"
	"msp-console/core/psa"
	"msp-console/core/storage"

	"msp-console/feature/billing"
	"msp-console/feature/billing/models"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the billing console server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := db.AutoMigrate(
			&models.Company{},
			&models.CompanyIntegration{},
			&models.VendorProduct{},
			&models.ProductMapping{},
			&models.CachedBillingLine{},
			&models.ReconciliationSnapshot{},
			&models.ReconciliationItem{},
			&models.BillingActivityEntry{},
			&models.CompanyProductAssignment{},
			&models.VendorDevice{},
			&models.VendorBackupJob{},
			&models.VendorAgent{},
			&models.VendorTenantRecord{},
			&models.VendorTenantLicense{},
		); err != nil {
			logg.Fatal("Failed to migrate database", zap.Error(err))
		}

		// 4. Initialize Collaborators
		psaClient, err := psa.NewClient(cfg.Psa)
		if err != nil {
			logg.Fatal("Failed to create PSA client", zap.Error(err))
		}

		locker, err := lock.New(cfg.Lock)
		if err != nil {
			logg.Fatal("Failed to create lock service", zap.Error(err))
		}

		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			logg.Fatal("Failed to create storage client", zap.Error(err))
		}

		// 5. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// Middleware Registration
		// Request ID must come first so every log line can be traced.
		app.Use(requestid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRequestID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 6. Register and Load Features
		mgr := loader.NewManager()
		mgr.Register(billing.NewFeature(db, psaClient, locker, store, cfg.Storage.Bucket, logg))

		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 7. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 8. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
