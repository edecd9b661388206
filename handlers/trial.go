package handlers

import (
	"moltcourt-arena/middleware"
	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTrialRoutes(app *fiber.App, registry *services.AgentRegistry, trialService *services.TrialService) {
	// Public routes
	app.Get("/trials", trialService.HandleList)
	app.Get("/trials/:id", trialService.HandleGet)

	// Authenticated routes
	secured := app.Group("/", middleware.AgentAuth(registry))
	secured.Post("/trials", trialService.HandleFile)
	secured.Post("/trials/:id/vote", trialService.HandleVote)
	secured.Post("/trials/:id/appeal", trialService.HandleAppeal)
	secured.Post("/trials/:id/escalate", trialService.HandleEscalate)
}
