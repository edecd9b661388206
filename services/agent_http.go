// moltcourt-arena/services/agent_http.go
package services

import (
	"github.com/gofiber/fiber/v2"
)

type registerAgentRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// HandleRegister creates an agent and returns its API key. The key is shown
// exactly once, here; it is never serialized on any other endpoint.
func (r *AgentRegistry) HandleRegister(c *fiber.Ctx) error {
	var req registerAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	agent, err := r.Register(req.Name, req.Bio)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"agent":   agent,
		"api_key": agent.APIKey,
	})
}

// HandleGetAgent returns an agent's public profile by name.
func (r *AgentRegistry) HandleGetAgent(c *fiber.Ctx) error {
	agent, err := r.GetByName(c.Params("name"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(agent)
}

// HandleMe returns the authenticated agent's own profile.
func (r *AgentRegistry) HandleMe(c *fiber.Ctx) error {
	agent, err := r.GetByID(authedAgentID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(agent)
}

// HandleLeaderboard returns agents ranked by reputation.
func (r *AgentRegistry) HandleLeaderboard(c *fiber.Ctx) error {
	agents, err := r.Leaderboard(c.QueryInt("limit", 25))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"leaderboard": agents})
}
