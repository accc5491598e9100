// Package bank provides the balance ledger behind the engine's payment rail.
//
// Every account has a single int64 balance in smallest currency units. Ticket
// payments move value from a player account into the engine pot; payouts push
// value back out. Each movement is all-or-nothing and leaves a transaction
// record for audit.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlotto/drawd/pkg/logger"
)

// Transaction types.
const (
	TxTypeDeposit     = "deposit"
	TxTypeTransferIn  = "transfer_in"
	TxTypeTransferOut = "transfer_out"
)

// ErrInsufficientFunds is returned when a debit exceeds the account balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Transaction records one balance movement on one account.
type Transaction struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	Counterparty string    `json:"counterparty,omitempty"`
	TxType       string    `json:"tx_type"`
	Amount       int64     `json:"amount"` // signed: credits positive, debits negative
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

// Manager handles all balance operations. Mutations serialize on one mutex so
// a transfer is atomic: either both sides move or neither does.
type Manager struct {
	mu       sync.Mutex
	log      *logger.Logger
	balances map[string]int64
	txs      map[string][]Transaction
}

// NewManager creates an empty ledger.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("bank")
	}
	return &Manager{
		log:      log,
		balances: make(map[string]int64),
		txs:      make(map[string][]Transaction),
	}
}

// Deposit credits an account from outside the ledger.
func (m *Manager) Deposit(ctx context.Context, account string, amount int64, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[account] += amount
	m.record(account, "", TxTypeDeposit, amount, reference)

	m.log.WithField("account", account).
		WithField("amount", amount).
		Debug("deposit credited")
	return nil
}

// Transfer moves amount between two accounts. Implements lottery.Bank.
func (m *Manager) Transfer(ctx context.Context, from, to string, amount int64, reference string) error {
	if amount < 0 {
		return fmt.Errorf("transfer amount must not be negative")
	}
	if from == to {
		return fmt.Errorf("transfer endpoints must differ")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, m.balances[from], amount)
	}

	m.balances[from] -= amount
	m.balances[to] += amount
	m.record(from, to, TxTypeTransferOut, -amount, reference)
	m.record(to, from, TxTypeTransferIn, amount, reference)

	m.log.WithField("from", from).
		WithField("to", to).
		WithField("amount", amount).
		WithField("reference", reference).
		Debug("transfer executed")
	return nil
}

// Balance reports the current balance of an account. Implements lottery.Bank.
func (m *Manager) Balance(ctx context.Context, account string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

// Transactions returns the most recent transactions of an account, newest
// first.
func (m *Manager) Transactions(ctx context.Context, account string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.txs[account]
	result := make([]Transaction, 0, limit)
	for i := len(history) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

// record appends a transaction entry. Caller must hold the lock.
func (m *Manager) record(account, counterparty, txType string, amount int64, reference string) {
	m.txs[account] = append(m.txs[account], Transaction{
		ID:           uuid.NewString(),
		Account:      account,
		Counterparty: counterparty,
		TxType:       txType,
		Amount:       amount,
		BalanceAfter: m.balances[account],
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	})
}
