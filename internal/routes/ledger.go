package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/engine"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
)

// RegisterAccountRoutes wires registration and account lookup.
func RegisterAccountRoutes(router fiber.Router, h *account.Handler) {
	router.Post("/users", h.Register)
	router.Get("/users/:userId", h.Get)
}

// RegisterLedgerRoutes wires the money-moving endpoints.
func RegisterLedgerRoutes(router fiber.Router, h *engine.Handler, s *settlement.Handler) {
	users := router.Group("/users/:userId")
	users.Post("/deposits", h.Deposit)
	users.Post("/withdrawals", h.Withdraw)
	users.Post("/transfers/wallets", h.TransferInterWallet)
	users.Post("/transfers/users", h.TransferToUser)
	users.Get("/balances", h.Balances)
	users.Get("/transactions", h.History)

	router.Post("/deposits/:reference/confirm", h.ConfirmDeposit)
	router.Get("/withdrawals/:reference", s.Get)
}

// RegisterAdminRoutes wires administrative review actions.
func RegisterAdminRoutes(router fiber.Router, a *account.Handler, s *settlement.Handler) {
	admin := router.Group("/admin")
	admin.Post("/withdrawals/:reference/approve", s.Approve)
	admin.Post("/withdrawals/:reference/reject", s.Reject)
	admin.Post("/users/:userId/wallets/:wallet/release", a.ReleaseWallet)
}
