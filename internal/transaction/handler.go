package transaction

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/middleware"
)

// Handler exposes transaction HTTP endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler builds a transaction HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type createRequest struct {
	AccountID            string            `json:"account_id"`
	TransactionType      string            `json:"transaction_type"`
	Amount               decimal.Decimal   `json:"amount"`
	Currency             string            `json:"currency"`
	Description          string            `json:"description"`
	Metadata             map[string]string `json:"metadata"`
	DestinationAccountID string            `json:"destination_account_id"`
}

type transactionResponse struct {
	ID                   string            `json:"id"`
	AccountID            string            `json:"account_id"`
	DestinationAccountID string            `json:"destination_account_id,omitempty"`
	TransactionType      string            `json:"transaction_type"`
	Amount               string            `json:"amount"`
	Currency             string            `json:"currency"`
	Status               string            `json:"status"`
	Description          string            `json:"description,omitempty"`
	ReferenceNumber      string            `json:"reference_number"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

// Create opens a pending transaction, reserving funds where applicable.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.engine.Create(c.UserContext(), middleware.UserID(c), CreateInput{
		AccountID:            req.AccountID,
		Type:                 Type(req.TransactionType),
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
		Metadata:             req.Metadata,
		DestinationAccountID: req.DestinationAccountID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(txn))
}

// Process settles a pending transaction.
func (h *Handler) Process(c *fiber.Ctx) error {
	txn, err := h.engine.Process(c.UserContext(), c.Params("transactionId"), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, account.ErrInsufficientFunds) && txn.Status == StatusFailed {
			// settlement committed the failed state; report it rather than
			// a bare error so the caller sees the terminal transaction
			return c.Status(http.StatusUnprocessableEntity).JSON(toResponse(txn))
		}
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(txn))
}

// Get fetches one transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	txn, err := h.engine.Get(c.UserContext(), c.Params("transactionId"), middleware.UserID(c))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(txn))
}

// ListByAccount returns the account's transactions, paginated.
func (h *Handler) ListByAccount(c *fiber.Ctx) error {
	f := ListFilter{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
		Status: Status(c.Query("status")),
		Type:   Type(c.Query("type")),
	}
	txns, page, err := h.engine.List(c.UserContext(), c.Params("accountId"), middleware.UserID(c), f)
	if err != nil {
		return mapError(err)
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, toResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "pagination": page})
}

func toResponse(txn Transaction) transactionResponse {
	return transactionResponse{
		ID:                   txn.ID,
		AccountID:            txn.AccountID,
		DestinationAccountID: txn.CounterpartyID,
		TransactionType:      string(txn.Type),
		Amount:               txn.Amount.String(),
		Currency:             txn.Currency,
		Status:               string(txn.Status),
		Description:          txn.Description,
		ReferenceNumber:      txn.ReferenceNumber,
		Metadata:             txn.Metadata,
		CreatedAt:            txn.CreatedAt,
		CompletedAt:          txn.CompletedAt,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, account.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, account.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyProcessed):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrInvalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusServiceUnavailable, "could not allocate reference number")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
