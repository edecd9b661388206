package handlers

import (
	"moltcourt-arena/middleware"
	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFightRoutes(app *fiber.App, registry *services.AgentRegistry, fightService *services.FightService) {
	// Public routes
	app.Get("/fights", fightService.HandleListOpen)
	app.Get("/fights/:id", fightService.HandleGet)

	// Authenticated routes
	secured := app.Group("/", middleware.AgentAuth(registry))
	secured.Post("/fights", fightService.HandleOpen)
	secured.Post("/fights/:id/accept", fightService.HandleAccept)
	secured.Post("/fights/:id/arguments", fightService.HandleSubmitArgument)
}
