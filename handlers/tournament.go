package handlers

import (
	"moltcourt-arena/middleware"
	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, registry *services.AgentRegistry, tournamentService *services.TournamentService) {
	// Public routes
	app.Get("/tournaments", tournamentService.HandleList)
	app.Get("/tournaments/:id", tournamentService.HandleGet)

	// Authenticated routes
	secured := app.Group("/", middleware.AgentAuth(registry))
	secured.Post("/tournaments", tournamentService.HandleCreate)
	secured.Post("/tournaments/:id/join", tournamentService.HandleJoin)
}
