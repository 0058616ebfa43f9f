package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type memState struct {
	balances map[string]*big.Int
}

func newMemState() *memState {
	return &memState{balances: make(map[string]*big.Int)}
}

func key(symbol string, addr []byte) string {
	return symbol + ":" + string(addr)
}

func (m *memState) Balance(symbol string, addr []byte) (*big.Int, error) {
	if balance, ok := m.balances[key(symbol, addr)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (m *memState) SetBalance(symbol string, addr []byte, amount *big.Int) error {
	m.balances[key(symbol, addr)] = new(big.Int).Set(amount)
	return nil
}

var (
	pool = []byte("pool")
	user = []byte("user")
)

func TestTransferMovesExactAmount(t *testing.T) {
	st := newMemState()
	ledger := NewLedger(st)
	require.NoError(t, ledger.Mint("TAP", pool, big.NewInt(100)))

	require.NoError(t, ledger.Transfer("TAP", pool, user, big.NewInt(10)))

	poolBalance, err := ledger.BalanceOf("TAP", pool)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(90), poolBalance)
	userBalance, err := ledger.BalanceOf("TAP", user)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), userBalance)
}

func TestTransferInsufficientFunds(t *testing.T) {
	st := newMemState()
	ledger := NewLedger(st)
	require.NoError(t, ledger.Mint("TAP", pool, big.NewInt(5)))

	err := ledger.Transfer("TAP", pool, user, big.NewInt(10))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	poolBalance, _ := ledger.BalanceOf("TAP", pool)
	require.Equal(t, big.NewInt(5), poolBalance)
	userBalance, _ := ledger.BalanceOf("TAP", user)
	require.Zero(t, userBalance.Sign())
}

func TestTransferValidation(t *testing.T) {
	ledger := NewLedger(newMemState())

	require.ErrorIs(t, ledger.Transfer("", pool, user, big.NewInt(1)), ErrInvalidSymbol)
	require.ErrorIs(t, ledger.Transfer("TAP", nil, user, big.NewInt(1)), ErrInvalidAddress)
	require.ErrorIs(t, ledger.Transfer("TAP", pool, user, nil), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Transfer("TAP", pool, user, big.NewInt(-1)), ErrInvalidAmount)

	tooWide := new(big.Int).Lsh(big.NewInt(1), 127)
	require.ErrorIs(t, ledger.Transfer("TAP", pool, user, tooWide), ErrInvalidAmount)
}

func TestTransferToSelfIsNoop(t *testing.T) {
	st := newMemState()
	ledger := NewLedger(st)
	require.NoError(t, ledger.Mint("TAP", pool, big.NewInt(7)))

	require.NoError(t, ledger.Transfer("TAP", pool, pool, big.NewInt(3)))
	balance, _ := ledger.BalanceOf("TAP", pool)
	require.Equal(t, big.NewInt(7), balance)
}

func TestTransferZeroAmount(t *testing.T) {
	st := newMemState()
	ledger := NewLedger(st)

	require.NoError(t, ledger.Transfer("TAP", pool, user, big.NewInt(0)))
	balance, _ := ledger.BalanceOf("TAP", user)
	require.Zero(t, balance.Sign())
}

func TestMintAccumulates(t *testing.T) {
	st := newMemState()
	ledger := NewLedger(st)
	require.NoError(t, ledger.Mint("TAP", pool, big.NewInt(4)))
	require.NoError(t, ledger.Mint("TAP", pool, big.NewInt(6)))

	balance, _ := ledger.BalanceOf("TAP", pool)
	require.Equal(t, big.NewInt(10), balance)
}
