// The seeder writes the ledger file directly, bypassing HTTP. It is
// the mint authority: crediting an account here has no corresponding
// debit, which is how supply enters the system for benchmarks and
// operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/auth"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/models"
	"github.com/seafoodstudios/equacks/internal/store"
)

var (
	dbPath   string
	lockPath string
	accounts int
	balance  int64
	password string
	prefix   string
	credit   string
)

func init() {
	flag.StringVar(&dbPath, "db", "equacks_database.json", "Ledger file path")
	flag.StringVar(&lockPath, "lock", "", "Lock file path (default <db>.lock)")
	flag.IntVar(&accounts, "accounts", 1000, "Number of accounts to seed")
	flag.Int64Var(&balance, "balance", 10000, "Initial balance per seeded account")
	flag.StringVar(&password, "password", "benchpass", "Password shared by seeded accounts")
	flag.StringVar(&prefix, "prefix", "bench", "Seeded username prefix")
	flag.StringVar(&credit, "credit", "", "Credit a single account instead: user:amount")
}

func main() {
	flag.Parse()
	if lockPath == "" {
		lockPath = dbPath + ".lock"
	}

	ctx := context.Background()
	gate := lock.NewFileGate(lockPath)
	ledgerStore := store.NewFileStore(dbPath)

	release, err := gate.Acquire(ctx, 20*time.Second)
	if err != nil {
		log.Fatalf("Unable to acquire ledger lock: %v", err)
	}
	defer release()

	ledger, err := ledgerStore.Load(ctx)
	if err != nil {
		log.Fatalf("Unable to load ledger: %v", err)
	}

	if credit != "" {
		creditAccount(ledger)
	} else {
		seedAccounts(ledger)
	}

	if err := ledgerStore.Replace(ctx, ledger); err != nil {
		log.Fatalf("Unable to persist ledger: %v", err)
	}
	log.Infof("Ledger persisted, total supply is now %d", ledger.TotalSupply())
}

func creditAccount(ledger models.Ledger) {
	user, amountStr, ok := strings.Cut(credit, ":")
	if !ok {
		log.Fatal("-credit expects user:amount")
	}
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil || amount <= 0 {
		log.Fatalf("Invalid credit amount %q", amountStr)
	}

	balance, err := applyCredit(ledger, user, amount)
	if err != nil {
		log.Fatalf("Unable to credit %s: %v", user, err)
	}
	log.Infof("Credited %d to %s, balance is now %d", amount, user, balance)
}

// applyCredit mints amount onto an existing account. The mint path
// honors the same int64 ceiling as transfers: a credit may never wrap
// a balance negative.
func applyCredit(ledger models.Ledger, user string, amount int64) (int64, error) {
	acct, exists := ledger[user]
	if !exists {
		return 0, fmt.Errorf("account %q does not exist", user)
	}
	if amount > math.MaxInt64-acct.Balance {
		return 0, fmt.Errorf("crediting %d would overflow balance %d", amount, acct.Balance)
	}
	acct.Balance += amount
	ledger[user] = acct
	return acct.Balance, nil
}

func seedAccounts(ledger models.Ledger) {
	log.Infof("Seeding %d accounts with balance %d...", accounts, balance)

	// One hash shared across seeded accounts: they share a password and
	// argon2id at 1000 iterations would take minutes.
	hash, err := auth.Hash(password)
	if err != nil {
		log.Fatalf("Unable to hash password: %v", err)
	}

	seeded := 0
	for i := 1; i <= accounts; i++ {
		username := fmt.Sprintf("%s%04d", prefix, i)
		if _, exists := ledger[username]; exists {
			continue
		}
		ledger[username] = models.Account{PasswordHash: hash, Balance: balance}
		seeded++
	}
	log.Infof("Seeded %d new accounts (%d already present)", seeded, accounts-seeded)
}
