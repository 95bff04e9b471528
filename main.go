package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"derby-race-system/handlers"
	"derby-race-system/middleware"
	"derby-race-system/models"
	"derby-race-system/services"
	"derby-race-system/utils"
	"derby-race-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-Wallet-Address",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.RegistryState{},
		&models.Race{},
		&models.RaceParticipant{},
		&models.RaceEvent{},
		&models.WalletMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	oracleAddress := os.Getenv("ORACLE_ADDRESS")
	if oracleAddress == "" {
		log.Fatal("ORACLE_ADDRESS environment variable not set")
	}
	payoutServiceURL := os.Getenv("PAYOUT_SERVICE_URL")
	if payoutServiceURL == "" {
		log.Fatal("PAYOUT_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("DERBY_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("DERBY_SERVICE_TOKEN environment variable not set")
	}

	targetTaps := int64(services.DefaultTargetTaps)
	if v := os.Getenv("DERBY_TARGET_TAPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			targetTaps = n
		} else {
			log.Fatal("DERBY_TARGET_TAPS must be a positive integer")
		}
	}

	payoutClient := services.NewPayoutServiceClient(payoutServiceURL, serviceToken)
	raceService := services.NewRaceService(db, payoutClient)
	if err := raceService.EnsureRegistry(oracleAddress); err != nil {
		log.Fatal("failed to seed race registry:", err)
	}
	liveService := services.NewLiveRaceService(raceService, targetTaps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mirror payout wallets from the custody service
	walletSyncClient := workers.NewWalletSyncClient(db)
	go workers.PollWallets(ctx, walletSyncClient, 10*time.Second)

	// Bridge finished live races into the oracle gate
	registryOracle, err := raceService.OracleAddress()
	if err != nil {
		log.Fatal("failed to read registry oracle:", err)
	}
	resultWorker := workers.NewResultSubmitWorker(raceService, liveService, registryOracle, 5*time.Second)
	go resultWorker.Start(ctx)

	liveService.StartPruneScheduler()

	// ✅ Setup routes — enforced Gateway auth everywhere
	handlers.SetupRaceRoutes(app, raceService)
	handlers.SetupLiveRoutes(app, liveService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Race registry oracle: %s", registryOracle)
	log.Println("✅ Payout wallet polling running (every 10s)")
	log.Println("✅ Result submission worker running (every 5s)")
	log.Printf("✅ Live races end at %d taps", targetTaps)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
