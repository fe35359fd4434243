package wallet

import "github.com/shopspring/decimal"

// Balances maps every wallet kind to its current amount.
type Balances map[Kind]decimal.Decimal

// NewBalances returns a zeroed balance set covering all wallet kinds.
func NewBalances() Balances {
	b := make(Balances, len(Kinds))
	for _, k := range Kinds {
		b[k] = decimal.Zero
	}
	return b
}

// Get returns the amount for the kind, treating absent entries as zero.
func (b Balances) Get(k Kind) decimal.Decimal {
	if v, ok := b[k]; ok {
		return v
	}
	return decimal.Zero
}

// Total sums every wallet.
func (b Balances) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b {
		total = total.Add(v)
	}
	return total
}
