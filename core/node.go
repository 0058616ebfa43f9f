package core

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tapfaucet/core/state"
	"tapfaucet/core/types"
	"tapfaucet/native/dispenser"
	"tapfaucet/native/token"
	"tapfaucet/storage"
)

// DispenserAddress is the well-known identity whose holdings fund outgoing
// rewards. It is derived, not key-controlled: nothing can sign for it.
var DispenserAddress = ethcrypto.Keccak256([]byte("tapfaucet/dispenser-pool"))[12:]

// Node owns the persistent state and serializes every dispenser operation.
// Each exported call runs as one all-or-nothing transaction: a state
// snapshot is taken up front and reverted when the call fails.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	state  *state.Manager
	ledger *token.Ledger
	clock  dispenser.Clock
}

// NewNode wires the state manager, token ledger and clock over the provided
// store.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	return &Node{
		db:     db,
		state:  manager,
		ledger: token.NewLedger(manager),
		clock:  newMonotonicClock(),
	}
}

// SetClock overrides the time source. It is intended for tests.
func (n *Node) SetClock(clock dispenser.Clock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if clock == nil {
		clock = newMonotonicClock()
	}
	n.clock = clock
}

// signerAuth authenticates a claim by comparing the recovered transaction
// signer against the claiming user.
type signerAuth struct {
	signer []byte
}

func (a signerAuth) RequireAuthenticated(addr []byte) error {
	if len(addr) == 0 || !bytes.Equal(a.signer, addr) {
		return fmt.Errorf("signer does not match user")
	}
	return nil
}

func (n *Node) engine(auth dispenser.Authorizer) *dispenser.Engine {
	return dispenser.NewEngine(n.ledger, n.clock, auth, DispenserAddress)
}

// run executes fn inside the per-call transaction boundary and returns the
// events the call emitted. Failed calls keep their rejection events but no
// state writes.
func (n *Node) run(fn func() error) ([]*types.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := n.state.Snapshot()
	err := fn()
	if err != nil {
		n.state.RevertToSnapshot(snap)
	}
	n.state.DiscardSnapshots()
	events := n.state.DrainEvents()
	return events, err
}

// Initialize performs the one-time dispenser setup.
func (n *Node) Initialize(cfg *dispenser.Config) ([]*types.Event, error) {
	return n.run(func() error {
		return n.engine(nil).Initialize(n.state, cfg)
	})
}

// Tap processes a claim by user, authenticated as signer.
func (n *Node) Tap(user, signer []byte) ([]*types.Event, error) {
	return n.run(func() error {
		return n.engine(signerAuth{signer: signer}).Tap(n.state, user)
	})
}

// FundDispenser mints amount of the configured token into the dispenser
// pool. It requires the dispenser to be initialized.
func (n *Node) FundDispenser(amount *big.Int) ([]*types.Event, error) {
	return n.run(func() error {
		cfg, err := n.state.DispenserConfig()
		if err != nil {
			return fmt.Errorf("%w: %v", dispenser.ErrConfigCorrupt, err)
		}
		if cfg == nil {
			return dispenser.ErrUninitialized
		}
		return n.ledger.Mint(cfg.TokenRef, DispenserAddress, amount)
	})
}

// Config returns the stored configuration, or nil before initialization.
func (n *Node) Config() (*dispenser.Config, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cfg, err := n.state.DispenserConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// LastTap reports the last successful claim timestamp for addr.
func (n *Node) LastTap(addr []byte) (uint64, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.LastTap(addr)
}

// NextClaimAt reports when addr becomes eligible for its next claim.
func (n *Node) NextClaimAt(addr []byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine(nil).NextClaimAt(n.state, addr)
}

// BalanceOf returns addr's balance of the configured token.
func (n *Node) BalanceOf(addr []byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cfg, err := n.state.DispenserConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispenser.ErrConfigCorrupt, err)
	}
	if cfg == nil {
		return nil, dispenser.ErrUninitialized
	}
	return n.ledger.BalanceOf(cfg.TokenRef, addr)
}
