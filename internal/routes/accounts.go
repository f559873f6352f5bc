package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/transaction"
)

// RegisterAccountRoutes wires account endpoints, including the per-account
// transaction listing.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, th *transaction.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:accountId", h.Get)
	r.Get("/accounts/:accountId/balance", h.Balance)
	r.Post("/accounts/:accountId/close", h.Close)
	r.Get("/accounts/:accountId/transactions", th.ListByAccount)
}
