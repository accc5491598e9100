package bank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_DepositAndTransfer(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	require.NoError(t, m.Deposit(ctx, "alice", 1_000, "funding"))

	balance, err := m.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), balance)

	require.NoError(t, m.Transfer(ctx, "alice", "pot", 300, "ticket:draw-1"))

	alice, _ := m.Balance(ctx, "alice")
	pot, _ := m.Balance(ctx, "pot")
	assert.Equal(t, int64(700), alice)
	assert.Equal(t, int64(300), pot)
}

func TestManager_TransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	require.NoError(t, m.Deposit(ctx, "alice", 100, "funding"))

	err := m.Transfer(ctx, "alice", "pot", 101, "ticket:draw-1")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	alice, _ := m.Balance(ctx, "alice")
	pot, _ := m.Balance(ctx, "pot")
	assert.Equal(t, int64(100), alice)
	assert.Equal(t, int64(0), pot)
}

func TestManager_TransferRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	assert.Error(t, m.Transfer(ctx, "alice", "alice", 10, "self"))
	assert.Error(t, m.Transfer(ctx, "alice", "pot", -1, "negative"))
	assert.Error(t, m.Deposit(ctx, "alice", 0, "zero"))
}

func TestManager_TransactionHistory(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	require.NoError(t, m.Deposit(ctx, "alice", 500, "funding"))
	require.NoError(t, m.Transfer(ctx, "alice", "pot", 200, "ticket:draw-1"))

	txs, err := m.Transactions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Newest first.
	assert.Equal(t, TxTypeTransferOut, txs[0].TxType)
	assert.Equal(t, int64(-200), txs[0].Amount)
	assert.Equal(t, int64(300), txs[0].BalanceAfter)
	assert.Equal(t, TxTypeDeposit, txs[1].TxType)

	potTxs, err := m.Transactions(ctx, "pot", 10)
	require.NoError(t, err)
	require.Len(t, potTxs, 1)
	assert.Equal(t, TxTypeTransferIn, potTxs[0].TxType)
	assert.Equal(t, "alice", potTxs[0].Counterparty)
}
