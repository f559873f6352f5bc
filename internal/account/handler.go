package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerpay/ledgerpay/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	AccountType string `json:"account_type"`
	Currency    string `json:"currency"`
}

type accountResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	AccountNumber    string    `json:"account_number"`
	AccountType      string    `json:"account_type"`
	Currency         string    `json:"currency"`
	Balance          string    `json:"balance"`
	AvailableBalance string    `json:"available_balance"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// Create opens an account for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.Create(c.UserContext(), middleware.UserID(c), CreateInput{
		AccountType: req.AccountType,
		Currency:    req.Currency,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(a))
}

// List returns the caller's accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return mapError(err)
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

// Get fetches a single account.
func (h *Handler) Get(c *fiber.Ctx) error {
	a, err := h.service.Get(c.UserContext(), c.Params("accountId"), middleware.UserID(c))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(a))
}

// Balance returns a balance snapshot.
func (h *Handler) Balance(c *fiber.Ctx) error {
	b, err := h.service.GetBalance(c.UserContext(), c.Params("accountId"), middleware.UserID(c))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"balance":           b.Balance.String(),
		"available_balance": b.AvailableBalance.String(),
		"currency":          b.Currency,
	})
}

// Close marks the account closed.
func (h *Handler) Close(c *fiber.Ctx) error {
	if err := h.service.Close(c.UserContext(), c.Params("accountId"), middleware.UserID(c)); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "account closed"})
}

func toResponse(a Account) accountResponse {
	return accountResponse{
		ID:               a.ID,
		UserID:           a.UserID,
		AccountNumber:    a.AccountNumber,
		AccountType:      a.AccountType,
		Currency:         a.Currency,
		Balance:          a.Balance.String(),
		AvailableBalance: a.AvailableBalance.String(),
		Status:           a.Status,
		CreatedAt:        a.CreatedAt,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusServiceUnavailable, "could not allocate account number")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
