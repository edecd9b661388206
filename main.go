package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"moltcourt-arena/handlers"
	"moltcourt-arena/models"
	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "moltcourt-arena",
	})

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOriginsList, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Payment",
		MaxAge:       86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Agent{},
		&models.Fight{},
		&models.Round{},
		&models.Argument{},
		&models.Trial{},
		&models.TrialVote{},
		&models.Tournament{},
		&models.TournamentEntry{},
		&models.BracketMatch{},
		&models.Payment{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	juryURL := os.Getenv("JURY_BASE_URL")
	juryKey := os.Getenv("JURY_API_KEY")
	if juryKey == "" {
		log.Fatal("JURY_API_KEY environment variable not set")
	}
	jury := services.NewLLMJuryClient(juryURL, juryKey, os.Getenv("JURY_MODEL"))

	gateway := services.NewX402Gateway(
		os.Getenv("X402_FACILITATOR_URL"),
		os.Getenv("X402_NETWORK"),
		os.Getenv("X402_ASSET"),
		os.Getenv("X402_PAY_TO"),
	)

	var anchor services.Anchor = services.NoopAnchor{}
	if rpcURL := os.Getenv("CHAIN_RPC_URL"); rpcURL != "" {
		chainID, err := strconv.Atoi(os.Getenv("CHAIN_ID"))
		if err != nil {
			log.Fatal("CHAIN_ID must be a number when CHAIN_RPC_URL is set")
		}
		anchor = services.NewChainAnchor(rpcURL, chainID, os.Getenv("CHAIN_WALLET_ADDRESS"))
	}

	registry := services.NewAgentRegistry(db)
	fightService := services.NewFightService(db, registry, jury, anchor)
	trialService := services.NewTrialService(db, registry, jury, gateway, anchor)
	tournamentService := services.NewTournamentService(db, registry, fightService, gateway, anchor)

	// Bracket fights feed the ladder through the completion hook.
	fightService.OnCompletion(tournamentService)

	trialService.StartSweepScheduler()

	handlers.SetupAgentRoutes(app, registry)
	handlers.SetupFightRoutes(app, registry, fightService)
	handlers.SetupTrialRoutes(app, registry, trialService)
	handlers.SetupTournamentRoutes(app, registry, tournamentService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on http://localhost:%s", port)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
