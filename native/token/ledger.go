package token

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrInvalidSymbol     = errors.New("token: invalid symbol")
	ErrInvalidAddress    = errors.New("token: invalid address")
	ErrInvalidAmount     = errors.New("token: amount must be a non-negative signed 128-bit value")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
)

// State is the balance book the ledger operates on.
type State interface {
	Balance(symbol string, addr []byte) (*big.Int, error)
	SetBalance(symbol string, addr []byte, amount *big.Int) error
}

// Ledger moves fungible token balances held in contract state. It is the
// transfer collaborator of the reward dispenser.
type Ledger struct {
	state State
}

func NewLedger(st State) *Ledger {
	return &Ledger{state: st}
}

func validAmount(amount *big.Int) bool {
	// The transfer interface carries signed 128-bit amounts; outgoing
	// rewards are always non-negative.
	return amount != nil && amount.Sign() >= 0 && amount.BitLen() <= 127
}

// Transfer debits from and credits to by exactly amount. It fails without
// touching state when the debit account cannot cover the amount.
func (l *Ledger) Transfer(symbol string, from, to []byte, amount *big.Int) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrInvalidSymbol
	}
	if len(from) == 0 || len(to) == 0 {
		return ErrInvalidAddress
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if bytes.Equal(from, to) {
		return nil
	}

	fromBalance, err := l.state.Balance(symbol, from)
	if err != nil {
		return fmt.Errorf("token: read sender balance: %w", err)
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	toBalance, err := l.state.Balance(symbol, to)
	if err != nil {
		return fmt.Errorf("token: read recipient balance: %w", err)
	}

	if err := l.state.SetBalance(symbol, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return fmt.Errorf("token: debit sender: %w", err)
	}
	if err := l.state.SetBalance(symbol, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return fmt.Errorf("token: credit recipient: %w", err)
	}
	return nil
}

// Mint credits newly issued tokens to an account. The daemon uses it to fund
// the dispenser pool.
func (l *Ledger) Mint(symbol string, to []byte, amount *big.Int) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrInvalidSymbol
	}
	if len(to) == 0 {
		return ErrInvalidAddress
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	balance, err := l.state.Balance(symbol, to)
	if err != nil {
		return fmt.Errorf("token: read balance: %w", err)
	}
	return l.state.SetBalance(symbol, to, new(big.Int).Add(balance, amount))
}

// BalanceOf returns the current balance for (symbol, addr).
func (l *Ledger) BalanceOf(symbol string, addr []byte) (*big.Int, error) {
	if len(addr) == 0 {
		return nil, ErrInvalidAddress
	}
	return l.state.Balance(symbol, addr)
}
