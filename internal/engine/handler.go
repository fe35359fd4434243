package engine

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Handler exposes the ledger engine over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler constructs an engine handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// httpError maps engine rejections onto HTTP statuses, preserving the exact
// reason text. Business rejections are 4xx; only infrastructure faults 5xx.
func httpError(err error) error {
	var (
		validation *ValidationError
		security   *SecurityError
		frozen     *FrozenAccountError
		banned     *BannedError
		locked     *LockedWalletError
		belowMin   *BelowMinimumError
		overLimit  *LimitExceededError
		noRecip    *RecipientNotFoundError
		misconf    *ConfigurationError
		external   *ExternalServiceError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &belowMin), errors.As(err, &overLimit):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.As(err, &security), errors.As(err, &frozen), errors.As(err, &banned), errors.As(err, &locked):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.As(err, &noRecip), errors.Is(err, account.ErrNotFound), errors.Is(err, ledger.ErrRecordNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.As(err, &misconf):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Deposit handles POST /users/:userId/deposits.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	channel, err := ParseChannel(req.Channel)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.Deposit(c.UserContext(), userID, req.Amount, channel, req.Reference)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toDepositResponse(res))
}

// ConfirmDeposit handles POST /deposits/:reference/confirm, the gateway
// confirmation callback.
func (h *Handler) ConfirmDeposit(c *fiber.Ctx) error {
	reference := c.Params("reference")
	var body struct {
		Channel string `json:"channel"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	channel, err := ParseChannel(body.Channel)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.ConfirmDeposit(c.UserContext(), reference, channel)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toDepositResponse(res))
}

func toDepositResponse(res DepositResult) DepositResponse {
	return DepositResponse{
		Status:          string(res.Status),
		Reference:       res.Reference,
		DepositedAmount: res.DepositedAmount,
		VATAmount:       res.VATAmount,
		TotalPaid:       res.TotalPaid,
		RedirectURL:     res.RedirectURL,
		ReceiptURL:      res.ReceiptURL,
	}
}

// Withdraw handles POST /users/:userId/withdrawals.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wType, err := settlement.ParseType(req.Type)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	source, err := wallet.Parse(req.SourceWallet)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.Withdraw(c.UserContext(), userID, WithdrawInput{
		Amount:       req.Amount,
		Type:         wType,
		SourceWallet: source,
		PIN:          req.PIN,
		Destination: settlement.Destination{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
			TokenAddress:  req.TokenAddress,
		},
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(WithdrawResponse{
		Status:           string(res.Status),
		Reference:        res.Reference,
		Amount:           res.Amount,
		Fee:              res.Fee,
		Tax:              res.Tax,
		TotalDeducted:    res.TotalDeducted,
		RequiresApproval: res.RequiresApproval,
	})
}

// TransferInterWallet handles POST /users/:userId/transfers/wallets.
func (h *Handler) TransferInterWallet(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req InterWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	from, err := wallet.Parse(req.FromWallet)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	to, err := wallet.Parse(req.ToWallet)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.TransferInterWallet(c.UserContext(), userID, from, to, req.Amount, req.PIN)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"reference":   res.Reference,
		"amount":      res.Amount,
		"from_wallet": string(res.FromWallet),
		"to_wallet":   string(res.ToWallet),
	})
}

// TransferToUser handles POST /users/:userId/transfers/users.
func (h *Handler) TransferToUser(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req UserTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	source, err := wallet.Parse(req.SourceWallet)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.TransferToUser(c.UserContext(), userID, req.Recipient, source, req.Amount, req.Note, req.PIN)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"reference": res.Reference,
		"amount":    res.Amount,
		"recipient": res.RecipientUsername,
	})
}

// Balances handles GET /users/:userId/balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	userID := c.Params("userId")
	balances, err := h.engine.Balances(c.UserContext(), userID)
	if err != nil {
		return httpError(err)
	}
	out := make(fiber.Map, len(balances))
	for k, v := range balances {
		out[string(k)] = v
	}
	return c.Status(http.StatusOK).JSON(out)
}

// History handles GET /users/:userId/transactions.
func (h *Handler) History(c *fiber.Ctx) error {
	userID := c.Params("userId")
	filter := ledger.HistoryFilter{
		Category: ledger.Category(c.Query("category")),
		Wallet:   wallet.Kind(c.Query("wallet")),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid offset")
		}
		filter.Offset = n
	}
	records, err := h.engine.History(c.UserContext(), userID, filter)
	if err != nil {
		return httpError(err)
	}
	out := make([]TransactionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toTransactionResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}
