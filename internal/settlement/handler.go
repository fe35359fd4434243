package settlement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes admin review of withdrawal requests.
type Handler struct {
	workflow *Workflow
}

// NewHandler constructs a settlement handler.
func NewHandler(workflow *Workflow) *Handler {
	return &Handler{workflow: workflow}
}

// Get handles GET /withdrawals/:reference.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.workflow.Get(c.UserContext(), c.Params("reference"))
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return fiber.NewError(http.StatusNotFound, "withdrawal request not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toRequestResponse(req))
}

// Approve handles POST /admin/withdrawals/:reference/approve.
func (h *Handler) Approve(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if err := h.workflow.Approve(c.UserContext(), reference); err != nil {
		return adminError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reference": reference,
		"status":    string(StatusProcessing),
	})
}

// Reject handles POST /admin/withdrawals/:reference/reject.
func (h *Handler) Reject(c *fiber.Ctx) error {
	reference := c.Params("reference")
	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a missing reason gets a default downstream.
	_ = c.BodyParser(&body)
	if err := h.workflow.Reject(c.UserContext(), reference, body.Reason); err != nil {
		return adminError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reference": reference,
		"status":    string(StatusFailed),
	})
}

func adminError(err error) error {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		return fiber.NewError(http.StatusNotFound, "withdrawal request not found")
	case errors.Is(err, ErrNotPending):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toRequestResponse(req Request) fiber.Map {
	out := fiber.Map{
		"reference":      req.Reference,
		"user_id":        req.UserID,
		"type":           string(req.Type),
		"source_wallet":  string(req.SourceWallet),
		"amount":         req.Amount,
		"fee":            req.Fee,
		"tax":            req.Tax,
		"total_deducted": req.TotalDeducted,
		"status":         string(req.Status),
		"created_at":     req.CreatedAt,
	}
	if req.FailureReason != "" {
		out["failure_reason"] = req.FailureReason
	}
	if req.SettledAt != nil {
		out["settled_at"] = req.SettledAt
	}
	return out
}
