package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tapfaucet/core/types"
	"tapfaucet/native/dispenser"
	"tapfaucet/storage"
)

var (
	dispenserConfigKey = ethcrypto.Keccak256([]byte("dispenser/config"))
	lastTapPrefix      = []byte("dispenser/last-tap:")
	balancePrefix      = []byte("balance:")
)

func lastTapKey(addr []byte) []byte {
	buf := make([]byte, len(lastTapPrefix)+len(addr))
	copy(buf, lastTapPrefix)
	copy(buf[len(lastTapPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(symbol string, addr []byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return ethcrypto.Keccak256(buf)
}

// storedConfig is the RLP shape of the write-once dispenser configuration.
type storedConfig struct {
	Admin           []byte
	TokenRef        string
	RewardAmount    *big.Int
	CooldownSeconds uint64
}

// Manager provides typed access to the dispenser's persistent state on top
// of a raw key-value store. Keys are prefix-derived and keccak-hashed before
// hitting storage; values are RLP encoded.
//
// Manager is not safe for concurrent use; the node serializes calls.
type Manager struct {
	db     storage.Database
	events []*types.Event

	journal   []journalEntry
	revisions []int
}

// NewManager creates a state manager operating on the provided store.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) put(key, value []byte) error {
	if len(m.revisions) > 0 {
		prev, err := m.db.Get(key)
		switch {
		case err == nil:
			m.journal = append(m.journal, journalEntry{key: key, existed: true, prev: prev})
		case errors.Is(err, storage.ErrKeyNotFound):
			m.journal = append(m.journal, journalEntry{key: key})
		default:
			return err
		}
	}
	return m.db.Put(key, value)
}

// HasDispenserConfig reports whether the write-once configuration record has
// been persisted. Its presence is the initialize idempotency guard.
func (m *Manager) HasDispenserConfig() (bool, error) {
	return m.db.Has(dispenserConfigKey)
}

// DispenserConfig loads the configuration record, or nil when absent.
func (m *Manager) DispenserConfig() (*dispenser.Config, error) {
	data, err := m.db.Get(dispenserConfigKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored := new(storedConfig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode dispenser config: %w", err)
	}
	return &dispenser.Config{
		Admin:           stored.Admin,
		TokenRef:        stored.TokenRef,
		RewardAmount:    stored.RewardAmount,
		CooldownSeconds: stored.CooldownSeconds,
	}, nil
}

// SetDispenserConfig persists the configuration record.
func (m *Manager) SetDispenserConfig(cfg *dispenser.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil dispenser config")
	}
	amount := cfg.RewardAmount
	if amount == nil {
		amount = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(&storedConfig{
		Admin:           cfg.Admin,
		TokenRef:        cfg.TokenRef,
		RewardAmount:    amount,
		CooldownSeconds: cfg.CooldownSeconds,
	})
	if err != nil {
		return fmt.Errorf("state: encode dispenser config: %w", err)
	}
	return m.put(dispenserConfigKey, encoded)
}

// LastTap returns the last successful claim timestamp for addr. ok is false
// when the user has never claimed; the entry is created only by a successful
// claim and never removed.
func (m *Manager) LastTap(addr []byte) (uint64, bool, error) {
	data, err := m.db.Get(lastTapKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var ts uint64
	if err := rlp.DecodeBytes(data, &ts); err != nil {
		return 0, false, fmt.Errorf("state: decode last tap: %w", err)
	}
	return ts, true, nil
}

// SetLastTap records the claim timestamp for addr.
func (m *Manager) SetLastTap(addr []byte, ts uint64) error {
	encoded, err := rlp.EncodeToBytes(ts)
	if err != nil {
		return fmt.Errorf("state: encode last tap: %w", err)
	}
	return m.put(lastTapKey(addr), encoded)
}

// Balance returns the token balance for (symbol, addr), zero when absent.
func (m *Manager) Balance(symbol string, addr []byte) (*big.Int, error) {
	data, err := m.db.Get(balanceKey(symbol, addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, fmt.Errorf("state: decode balance: %w", err)
	}
	return balance, nil
}

// SetBalance stores the token balance for (symbol, addr).
func (m *Manager) SetBalance(symbol string, addr []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("state: encode balance: %w", err)
	}
	return m.put(balanceKey(symbol, addr), encoded)
}

// AppendEvent records an event emitted during the current call.
func (m *Manager) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.events = append(m.events, evt.Clone())
}

// Events returns the events accumulated since the last DrainEvents call.
func (m *Manager) Events() []*types.Event {
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// DrainEvents returns accumulated events and resets the buffer.
func (m *Manager) DrainEvents() []*types.Event {
	out := m.events
	m.events = nil
	return out
}
