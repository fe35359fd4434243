package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Handler exposes account registration and admin wallet-unlock endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	PIN      string `json:"pin"`
}

// Register handles POST /users.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Register(c.UserContext(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		PIN:      req.PIN,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":    acct.ID,
		"username":   acct.Username,
		"created_at": acct.CreatedAt,
	})
}

// Get handles GET /users/:userId.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":           acct.ID,
		"username":          acct.Username,
		"email":             acct.Email,
		"frozen":            acct.Frozen,
		"withdrawal_banned": acct.WithdrawalBanned,
		"created_at":        acct.CreatedAt,
	})
}

// ReleaseWallet handles POST /admin/users/:userId/wallets/:wallet/release.
// Releasing a restricted wallet makes it eligible for withdrawals and
// transfers.
func (h *Handler) ReleaseWallet(c *fiber.Ctx) error {
	kind, err := wallet.Parse(c.Params("wallet"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	unlock, err := h.service.ReleaseWallet(c.UserContext(), c.Params("userId"), kind)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"unlock_id": unlock.ID,
		"wallet":    unlock.Wallet,
		"status":    string(unlock.Status),
	})
}
