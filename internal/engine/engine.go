// Package engine implements the ledger's transactional operations.
// Every operation is one linearizable transaction: acquire the gate,
// load the ledger, validate, mutate in memory, replace the document,
// release the gate. Reads take the gate too so they observe a
// consistent snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/auth"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/models"
	"github.com/seafoodstudios/equacks/internal/store"
)

var (
	ErrConflict          = errors.New("username taken, pick another one")
	ErrNotFound          = errors.New("user does not exist")
	ErrReceiverNotFound  = errors.New("receiver does not exist")
	ErrAuth              = errors.New("incorrect password")
	ErrInsufficientFunds = errors.New("you don't have enough currency to make this transaction")
	ErrSelfTransfer      = errors.New("you cannot transfer currency to yourself")
)

// ValidationError rejects malformed input. The reason is safe to show
// to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// MaxFieldLen bounds usernames, passwords and receiver names.
const MaxFieldLen = 50

// Engine runs ledger transactions against a store under a gate.
type Engine struct {
	store       store.Store
	gate        lock.Gate
	lockTimeout time.Duration
}

func New(s store.Store, g lock.Gate, lockTimeout time.Duration) *Engine {
	return &Engine{store: s, gate: g, lockTimeout: lockTimeout}
}

// withLedger runs fn against a freshly loaded ledger while holding the
// gate. When fn reports dirty, the mutated ledger is atomically
// persisted before the gate is released. fn must not retain the ledger
// past its return.
func (e *Engine) withLedger(ctx context.Context, fn func(models.Ledger) (dirty bool, err error)) error {
	release, err := e.gate.Acquire(ctx, e.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	ledger, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	dirty, err := fn(ledger)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return e.store.Replace(ctx, ledger)
}

// CreateAccount inserts a new account with a zero balance.
func (e *Engine) CreateAccount(ctx context.Context, username, password string) error {
	if err := validateField("username", username); err != nil {
		return err
	}
	if err := validateField("password", password); err != nil {
		return err
	}

	// Hashing is deliberately outside the critical section: argon2id is
	// slow on purpose and must not serialize unrelated transactions.
	hash, err := auth.Hash(password)
	if err != nil {
		return err
	}

	err = e.withLedger(ctx, func(ledger models.Ledger) (bool, error) {
		if _, ok := ledger[username]; ok {
			return false, ErrConflict
		}
		ledger[username] = models.Account{PasswordHash: hash, Balance: 0}
		return true, nil
	})
	if err != nil {
		return err
	}

	log.WithField("username", username).Info("account created")
	return nil
}

// DeleteAccount removes an account after verifying its credential. The
// freed balance is burned, not redistributed; it is logged for the
// audit trail.
func (e *Engine) DeleteAccount(ctx context.Context, username, password string) error {
	if err := validateField("username", username); err != nil {
		return err
	}
	if err := validateField("password", password); err != nil {
		return err
	}

	var burned int64
	err := e.withLedger(ctx, func(ledger models.Ledger) (bool, error) {
		acct, ok := ledger[username]
		if !ok {
			return false, ErrNotFound
		}
		match, err := auth.Verify(acct.PasswordHash, password)
		if err != nil {
			return false, err
		}
		if !match {
			return false, ErrAuth
		}
		burned = acct.Balance
		delete(ledger, username)
		return true, nil
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"username": username, "burned": burned}).Info("account deleted")
	return nil
}

// Transfer debits the sender and credits the receiver by amount in a
// single transaction. The two legs are applied together in memory
// before the one Replace, so a debited-without-credited state is never
// observable.
func (e *Engine) Transfer(ctx context.Context, username, password, receiver, amount string) (*models.Transfer, error) {
	if err := validateField("username", username); err != nil {
		return nil, err
	}
	if err := validateField("password", password); err != nil {
		return nil, err
	}
	if err := validateField("receiver", receiver); err != nil {
		return nil, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	err = e.withLedger(ctx, func(ledger models.Ledger) (bool, error) {
		sender, ok := ledger[username]
		if !ok {
			return false, ErrNotFound
		}
		recv, ok := ledger[receiver]
		if !ok {
			return false, ErrReceiverNotFound
		}

		match, err := auth.Verify(sender.PasswordHash, password)
		if err != nil {
			return false, err
		}
		if !match {
			return false, ErrAuth
		}

		if sender.Balance < value {
			return false, ErrInsufficientFunds
		}
		if username == receiver {
			return false, ErrSelfTransfer
		}
		if recv.Balance > math.MaxInt64-value {
			return false, &ValidationError{Reason: "amount is too large"}
		}

		sender.Balance -= value
		recv.Balance += value
		ledger[username] = sender
		ledger[receiver] = recv
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	t := &models.Transfer{Sender: username, Receiver: receiver, Amount: value}
	log.WithFields(log.Fields{"sender": username, "receiver": receiver, "amount": value}).Info("transfer completed")
	return t, nil
}

// Balance returns the account's current balance.
func (e *Engine) Balance(ctx context.Context, username, password string) (int64, error) {
	if err := validateField("username", username); err != nil {
		return 0, err
	}
	if err := validateField("password", password); err != nil {
		return 0, err
	}

	var balance int64
	err := e.withLedger(ctx, func(ledger models.Ledger) (bool, error) {
		acct, ok := ledger[username]
		if !ok {
			return false, ErrNotFound
		}
		match, err := auth.Verify(acct.PasswordHash, password)
		if err != nil {
			return false, err
		}
		if !match {
			return false, ErrAuth
		}
		balance = acct.Balance
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// TotalSupply sums every balance. Unauthenticated, but still under the
// gate so the sum is a consistent snapshot.
func (e *Engine) TotalSupply(ctx context.Context) (int64, error) {
	var sum int64
	err := e.withLedger(ctx, func(ledger models.Ledger) (bool, error) {
		sum = ledger.TotalSupply()
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// validateField bounds a field at MaxFieldLen characters, not bytes:
// multi-byte usernames count by rune.
func validateField(name, value string) error {
	if utf8.RuneCountInString(value) > MaxFieldLen {
		return &ValidationError{Reason: fmt.Sprintf("%s cannot be longer than %d characters", name, MaxFieldLen)}
	}
	return nil
}

// parseAmount accepts only canonical positive-integer digit strings:
// no sign, no decimals, no surrounding whitespace. Values above
// math.MaxInt64 are rejected rather than silently promoted to
// arbitrary precision.
func parseAmount(s string) (int64, error) {
	if s == "" {
		return 0, &ValidationError{Reason: "amount must be a digit"}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, &ValidationError{Reason: "amount must be a digit"}
		}
	}
	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ValidationError{Reason: "amount is too large"}
	}
	if value <= 0 {
		return 0, &ValidationError{Reason: "amount must be larger than zero"}
	}
	return value, nil
}
