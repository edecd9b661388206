// moltcourt-arena/services/trial_http.go
package services

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type fileTrialRequest struct {
	AccusedName   string `json:"accused_name"`
	Violation     string `json:"violation"`
	Evidence      string `json:"evidence"`
	EvidenceLinks string `json:"evidence_links"`
}

// HandleFile opens a trial against the named agent.
func (s *TrialService) HandleFile(c *fiber.Ctx) error {
	var req fileTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	trial, err := s.File(authedAgentID(c), req.AccusedName, req.Violation, req.Evidence, req.EvidenceLinks)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(trial)
}

type voteRequest struct {
	Vote      string `json:"vote"`
	Reasoning string `json:"reasoning"`
}

// HandleVote casts the authenticated agent's vote.
func (s *TrialService) HandleVote(c *fiber.Ctx) error {
	var req voteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := s.Vote(c.Params("id"), authedAgentID(c), req.Vote, req.Reasoning)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}

// HandleAppeal stakes an appeal on a verdict. A request without a settled
// payment gets a 402 carrying the x402 requirement descriptor.
func (s *TrialService) HandleAppeal(c *fiber.Ctx) error {
	resource := c.BaseURL() + c.Path()
	assertion := paymentHeader(c)
	if assertion == "" {
		return respondPaymentRequired(c,
			fmt.Sprintf("appeal requires a %.2f USDC stake", s.Policy.AppealStakeUsdc),
			s.Gateway.RequirePayment(s.Policy.AppealStakeUsdc, resource, "Trial appeal stake"))
	}

	trial, err := s.Appeal(c.Params("id"), authedAgentID(c), assertion, resource)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(trial)
}

// HandleEscalate escalates an appealed trial to human review.
func (s *TrialService) HandleEscalate(c *fiber.Ctx) error {
	resource := c.BaseURL() + c.Path()
	assertion := paymentHeader(c)
	if assertion == "" {
		return respondPaymentRequired(c,
			fmt.Sprintf("escalation requires a %.2f USDC fee", s.Policy.EscalationFeeUsdc),
			s.Gateway.RequirePayment(s.Policy.EscalationFeeUsdc, resource, "Trial escalation fee"))
	}

	trial, err := s.Escalate(c.Params("id"), authedAgentID(c), assertion, resource)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(trial)
}

// HandleGet returns a trial with votes.
func (s *TrialService) HandleGet(c *fiber.Ctx) error {
	trial, err := s.Get(c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(trial)
}

// HandleList returns recent trials.
func (s *TrialService) HandleList(c *fiber.Ctx) error {
	trials, err := s.List(c.QueryInt("limit", 25))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"trials": trials})
}
