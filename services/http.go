// moltcourt-arena/services/http.go
package services

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// respondErr maps an engine error onto an HTTP response. Unknown errors are
// logged and answered as 500 without leaking internals.
func respondErr(c *fiber.Ctx, err error) error {
	if se, ok := AsServiceError(err); ok {
		return c.Status(se.HTTPStatus()).JSON(fiber.Map{"error": se.Message})
	}
	log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// respondPaymentRequired answers 402 with the x402 requirement descriptor so
// the caller knows what to pay and where to settle.
func respondPaymentRequired(c *fiber.Ctx, message string, req PaymentRequirement) error {
	return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":   message,
		"accepts": []PaymentRequirement{req},
	})
}

// authedAgentID reads the agent id placed in locals by the auth middleware.
func authedAgentID(c *fiber.Ctx) string {
	id, _ := c.Locals("agent_id").(string)
	return id
}

// paymentHeader returns the raw x402 payment assertion, if the caller sent
// one.
func paymentHeader(c *fiber.Ctx) string {
	return c.Get("X-Payment")
}
