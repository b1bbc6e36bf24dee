package models

import "fmt"

// Account holds one user's credential hash and balance. The username is
// the ledger key, not a field, and never changes after creation.
type Account struct {
	PasswordHash string `json:"password"`
	Balance      int64  `json:"balance"`
}

// Ledger is the full username -> account mapping. Every transaction
// loads it whole, mutates it in memory and writes it back whole.
type Ledger map[string]Account

// TotalSupply sums every balance in the ledger.
func (l Ledger) TotalSupply() int64 {
	var sum int64
	for _, acct := range l {
		sum += acct.Balance
	}
	return sum
}

// Transfer is the immutable record of a completed transfer.
type Transfer struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

// Record renders the transfer as the human-readable line submitted to
// the records service.
func (t Transfer) Record() string {
	return fmt.Sprintf("Transaction successfully sent from %s to %s with an amount of %d.", t.Sender, t.Receiver, t.Amount)
}
