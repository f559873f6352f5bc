package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerpay/ledgerpay/internal/transaction"
)

// RegisterTransactionRoutes wires transaction lifecycle endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *transaction.Handler) {
	r.Post("/transactions", h.Create)
	r.Get("/transactions/:transactionId", h.Get)
	r.Post("/transactions/:transactionId/process", h.Process)
}
