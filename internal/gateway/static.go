package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticGateway simulates a payment provider. Initiated references verify as
// successful, which is enough for dev mode and tests.
type StaticGateway struct {
	CheckoutBase string

	mu        sync.Mutex
	initiated map[string]bool
}

// NewStaticGateway builds a simulated gateway client.
func NewStaticGateway(checkoutBase string) *StaticGateway {
	if checkoutBase == "" {
		checkoutBase = "https://checkout.kobo-pay.test/"
	}
	return &StaticGateway{CheckoutBase: checkoutBase, initiated: make(map[string]bool)}
}

// Initiate records the reference and returns a synthetic checkout URL.
func (g *StaticGateway) Initiate(_ context.Context, _ decimal.Decimal, reference string) (InitiateResult, error) {
	g.mu.Lock()
	g.initiated[reference] = true
	g.mu.Unlock()
	return InitiateResult{Reference: reference, RedirectURL: g.CheckoutBase + reference}, nil
}

// Verify approves any reference previously initiated.
func (g *StaticGateway) Verify(_ context.Context, reference string) (VerifyResult, error) {
	g.mu.Lock()
	known := g.initiated[reference]
	g.mu.Unlock()
	if !known {
		return VerifyResult{Reference: reference, Status: StatusPending}, nil
	}
	return VerifyResult{Reference: reference, Status: StatusSuccess}, nil
}

// StaticPayout simulates a payout provider. Err, when set, makes every
// transfer fail, which drives the settlement refund path in tests.
type StaticPayout struct {
	Err error
}

// Transfer approves or rejects the payout according to Err.
func (p *StaticPayout) Transfer(_ context.Context, req PayoutRequest) (PayoutResult, error) {
	if p.Err != nil {
		return PayoutResult{Reference: req.Reference, Status: StatusFailed}, p.Err
	}
	return PayoutResult{Reference: req.Reference, Status: StatusSuccess}, nil
}

// ErrPayoutRejected is a canned provider rejection for simulations.
var ErrPayoutRejected = errors.New("payout rejected by provider")
