// moltcourt-arena/services/tournament_http.go
package services

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type createTournamentRequest struct {
	Name           string  `json:"name"`
	Topic          string  `json:"topic"`
	Description    string  `json:"description"`
	Format         string  `json:"format"`
	MaxEntrants    int     `json:"max_entrants"`
	RoundsPerMatch int     `json:"rounds_per_match"`
	EntryFeeUsdc   float64 `json:"entry_fee_usdc"`
}

// HandleCreate opens a tournament with the creator as its first entrant. A
// nonzero entry fee applies to the creator too.
func (s *TournamentService) HandleCreate(c *fiber.Ctx) error {
	var req createTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resource := c.BaseURL() + c.Path()
	assertion := paymentHeader(c)
	if req.EntryFeeUsdc > 0 && assertion == "" {
		return respondPaymentRequired(c,
			fmt.Sprintf("entry requires a %.2f USDC fee", req.EntryFeeUsdc),
			s.Gateway.RequirePayment(req.EntryFeeUsdc, resource, "Tournament entry fee"))
	}

	tournament, err := s.Create(authedAgentID(c), req.Name, req.Topic, req.Description,
		req.Format, req.MaxEntrants, req.RoundsPerMatch, req.EntryFeeUsdc, assertion, resource)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tournament)
}

// HandleJoin enters the authenticated agent. When the tournament charges an
// entry fee and no payment assertion was sent, the answer is 402 with the
// x402 requirement descriptor.
func (s *TournamentService) HandleJoin(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	tournament, err := s.getTournament(tournamentID)
	if err != nil {
		return respondErr(c, err)
	}

	resource := c.BaseURL() + c.Path()
	assertion := paymentHeader(c)
	if tournament.EntryFeeUsdc > 0 && assertion == "" {
		return respondPaymentRequired(c,
			fmt.Sprintf("entry requires a %.2f USDC fee", tournament.EntryFeeUsdc),
			s.Gateway.RequirePayment(tournament.EntryFeeUsdc, resource, "Tournament entry fee"))
	}

	tournament, err = s.Join(tournamentID, authedAgentID(c), assertion, resource)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(tournament)
}

// HandleGet returns a tournament with its entries and bracket.
func (s *TournamentService) HandleGet(c *fiber.Ctx) error {
	tournament, err := s.Get(c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(tournament)
}

// HandleList returns recent tournaments.
func (s *TournamentService) HandleList(c *fiber.Ctx) error {
	tournaments, err := s.List(c.QueryInt("limit", 25))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": tournaments})
}
