package dispenser

import (
	"fmt"
	"math/big"

	"tapfaucet/core/types"
)

// State describes the minimal functionality the dispenser engine needs from
// the surrounding state implementation. Snapshot/RevertToSnapshot provide
// the scoped transaction boundary the payout path depends on.
type State interface {
	HasDispenserConfig() (bool, error)
	// DispenserConfig returns nil when no configuration has been persisted.
	DispenserConfig() (*Config, error)
	SetDispenserConfig(cfg *Config) error
	// LastTap reports the last successful claim timestamp for addr. ok is
	// false when the user has never claimed.
	LastTap(addr []byte) (ts uint64, ok bool, err error)
	SetLastTap(addr []byte, ts uint64) error
	Snapshot() int
	RevertToSnapshot(id int)
	AppendEvent(evt *types.Event)
}

// TokenLedger executes the balance movement for a successful claim.
type TokenLedger interface {
	Transfer(symbol string, from, to []byte, amount *big.Int) error
}

// Clock supplies the current ledger time in seconds. Readings must be
// monotonically non-decreasing across calls.
type Clock interface {
	CurrentTime() uint64
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() uint64

func (f ClockFunc) CurrentTime() uint64 { return f() }

// Authorizer verifies that the claiming user is the transaction signer. It
// runs before any state is read.
type Authorizer interface {
	RequireAuthenticated(addr []byte) error
}

// Engine orchestrates validation, cooldown bookkeeping and payout for the
// reward dispenser.
type Engine struct {
	ledger        TokenLedger
	clock         Clock
	auth          Authorizer
	dispenserAddr []byte
}

// NewEngine constructs the engine with its collaborators. dispenserAddr is
// the identity whose holdings fund outgoing rewards.
func NewEngine(ledger TokenLedger, clock Clock, auth Authorizer, dispenserAddr []byte) *Engine {
	return &Engine{
		ledger:        ledger,
		clock:         clock,
		auth:          auth,
		dispenserAddr: append([]byte(nil), dispenserAddr...),
	}
}

// DispenserAddress returns the identity funding reward payouts.
func (e *Engine) DispenserAddress() []byte {
	return append([]byte(nil), e.dispenserAddr...)
}

// Initialize persists the write-once configuration. The first writer wins;
// any later attempt fails without touching state. There is intentionally no
// restriction on who may call it beyond that guard.
func (e *Engine) Initialize(st State, cfg *Config) error {
	if st == nil {
		return fmt.Errorf("dispenser: nil state")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	exists, err := st.HasDispenserConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if exists {
		return ErrAlreadyInitialized
	}
	stored := cfg.Clone()
	if err := st.SetDispenserConfig(stored); err != nil {
		return fmt.Errorf("dispenser: persist config: %w", err)
	}
	emitInitialized(st, stored)
	return nil
}

// Tap processes a single claim for user. Exactly two outcomes are possible:
// the claim is rejected with no side effects, or the cooldown ledger is
// updated and the reward transferred. The timestamp write and the transfer
// run inside a state snapshot; a failed transfer reverts the write so a user
// is never cooldown-locked without having been paid.
func (e *Engine) Tap(st State, user []byte) error {
	if st == nil {
		return fmt.Errorf("dispenser: nil state")
	}
	if e.auth == nil {
		return ErrUnauthorized
	}
	if err := e.auth.RequireAuthenticated(user); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	cfg, err := st.DispenserConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if cfg == nil {
		return ErrUninitialized
	}

	lastTap, claimed, err := st.LastTap(user)
	if err != nil {
		return fmt.Errorf("dispenser: read cooldown ledger: %w", err)
	}
	now := e.clock.CurrentTime()

	if claimed {
		// Strict comparison: a claim exactly at lastTap+cooldown succeeds.
		// The sum saturates on overflow, which makes such an entry
		// permanently cooled down rather than wrapping into the past.
		deadline := lastTap + cfg.CooldownSeconds
		if deadline < lastTap {
			deadline = ^uint64(0)
		}
		if deadline > now {
			emitTapRejected(st, user, "cooldown_active", map[string]string{
				"nextClaimAt": fmt.Sprintf("%d", deadline),
			})
			return fmt.Errorf("%w: next claim at %d (now %d)", ErrCooldownActive, deadline, now)
		}
	}

	amount, err := cfg.TransferAmount()
	if err != nil {
		return err
	}

	snap := st.Snapshot()
	if err := st.SetLastTap(user, now); err != nil {
		st.RevertToSnapshot(snap)
		return fmt.Errorf("dispenser: update cooldown ledger: %w", err)
	}
	if err := e.ledger.Transfer(cfg.TokenRef, e.dispenserAddr, user, amount); err != nil {
		st.RevertToSnapshot(snap)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	emitRewardPaid(st, user, amount.String(), now)
	return nil
}

// NextClaimAt reports the earliest timestamp at which user may claim again.
// Users that have never claimed are eligible immediately.
func (e *Engine) NextClaimAt(st State, user []byte) (uint64, error) {
	cfg, err := st.DispenserConfig()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if cfg == nil {
		return 0, ErrUninitialized
	}
	lastTap, claimed, err := st.LastTap(user)
	if err != nil {
		return 0, fmt.Errorf("dispenser: read cooldown ledger: %w", err)
	}
	if !claimed {
		return 0, nil
	}
	next := lastTap + cfg.CooldownSeconds
	if next < lastTap {
		next = ^uint64(0)
	}
	return next, nil
}
