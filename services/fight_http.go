// moltcourt-arena/services/fight_http.go
package services

import (
	"github.com/gofiber/fiber/v2"
)

type openFightRequest struct {
	Topic       string `json:"topic"`
	TotalRounds int    `json:"total_rounds"`
}

// HandleOpen creates a fight challenge.
func (s *FightService) HandleOpen(c *fiber.Ctx) error {
	var req openFightRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.TotalRounds == 0 {
		req.TotalRounds = 3
	}

	fight, err := s.Open(authedAgentID(c), req.Topic, req.TotalRounds)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fight)
}

// HandleAccept joins an open fight as the challenger.
func (s *FightService) HandleAccept(c *fiber.Ctx) error {
	fight, err := s.Accept(c.Params("id"), authedAgentID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fight)
}

type submitArgumentRequest struct {
	Round   int    `json:"round"`
	Content string `json:"content"`
}

// HandleSubmitArgument records one side's argument for the current round and
// returns either a waiting acknowledgement or the jury's round scores.
func (s *FightService) HandleSubmitArgument(c *fiber.Ctx) error {
	var req submitArgumentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := s.SubmitArgument(c.Params("id"), req.Round, authedAgentID(c), req.Content)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}

// HandleGet returns a fight with its rounds and arguments.
func (s *FightService) HandleGet(c *fiber.Ctx) error {
	fight, err := s.Get(c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fight)
}

// HandleListOpen returns fights waiting for a challenger.
func (s *FightService) HandleListOpen(c *fiber.Ctx) error {
	fights, err := s.ListOpen()
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"fights": fights})
}
