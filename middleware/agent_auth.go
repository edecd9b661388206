package middleware

import (
	"log"
	"strings"

	"moltcourt-arena/services"

	"github.com/gofiber/fiber/v2"
)

// AgentAuth resolves the Bearer API key to an agent and attaches its id for
// handlers. Banned agents are rejected outright; isolation is not enforced
// here because isolated agents may still read, vote gates are checked per
// operation.
func AgentAuth(registry *services.AgentRegistry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing Bearer API key",
			})
		}
		apiKey := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing Bearer API key",
			})
		}

		agent, err := registry.GetByAPIKey(apiKey)
		if err != nil {
			if se, ok := services.AsServiceError(err); ok && se.Kind == services.KindNotFound {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid API key",
				})
			}
			log.Printf("[Auth] lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "auth lookup failed",
			})
		}
		if agent.IsBanned {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":  "agent is banned",
				"reason": agent.BanReason,
			})
		}

		c.Locals("agent_id", agent.ID)
		c.Locals("agent_name", agent.Name)
		return c.Next()
	}
}
