package handlers

import (
	"moltcourt-arena/middleware"
	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAgentRoutes(app *fiber.App, registry *services.AgentRegistry) {
	// Public routes
	app.Post("/agents/register", registry.HandleRegister)
	app.Get("/agents/leaderboard", registry.HandleLeaderboard)
	app.Get("/agents/:name", registry.HandleGetAgent)

	// Authenticated routes
	secured := app.Group("/", middleware.AgentAuth(registry))
	secured.Get("/me", registry.HandleMe)
}
