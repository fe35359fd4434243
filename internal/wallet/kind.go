package wallet

import "fmt"

// Kind identifies one named balance on a member's account.
type Kind string

const (
	Main        Kind = "main"
	Spendable   Kind = "spendable"
	Shareholder Kind = "shareholder"
	Cashback    Kind = "cashback"
	Community   Kind = "community"
	Education   Kind = "education"
	Car         Kind = "car"
	Business    Kind = "business"
	Shelter     Kind = "shelter"
)

// Kinds lists every wallet in a stable order, used for balance snapshots
// and schema column mapping.
var Kinds = []Kind{
	Main, Spendable, Shareholder, Cashback, Community,
	Education, Car, Business, Shelter,
}

// restricted wallets are empowerment wallets: withdrawing or transferring
// out of them requires a released unlock record, and withdrawals from them
// attract tax.
var restricted = map[Kind]bool{
	Education: true,
	Car:       true,
	Business:  true,
	Shelter:   true,
}

// Parse converts a wire selector into a Kind.
func Parse(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown wallet %q", s)
}

// Restricted reports whether the wallet is gated behind an unlock event.
func (k Kind) Restricted() bool {
	return restricted[k]
}

// Valid reports whether the kind is one of the known wallets.
func (k Kind) Valid() bool {
	_, err := Parse(string(k))
	return err == nil
}

func (k Kind) String() string { return string(k) }
