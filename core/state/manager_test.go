package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tapfaucet/core/types"
	"tapfaucet/native/dispenser"
	"tapfaucet/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func sampleConfig() *dispenser.Config {
	return &dispenser.Config{
		Admin:           []byte("admin-address-bytes-"),
		TokenRef:        "TAP",
		RewardAmount:    big.NewInt(42),
		CooldownSeconds: 60,
	}
}

func TestDispenserConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)

	exists, err := m.HasDispenserConfig()
	require.NoError(t, err)
	require.False(t, exists)

	cfg, err := m.DispenserConfig()
	require.NoError(t, err)
	require.Nil(t, cfg)

	require.NoError(t, m.SetDispenserConfig(sampleConfig()))

	exists, err = m.HasDispenserConfig()
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := m.DispenserConfig()
	require.NoError(t, err)
	require.Equal(t, sampleConfig().Admin, loaded.Admin)
	require.Equal(t, "TAP", loaded.TokenRef)
	require.Equal(t, big.NewInt(42), loaded.RewardAmount)
	require.Equal(t, uint64(60), loaded.CooldownSeconds)
}

func TestLastTapDistinguishesAbsentFromZero(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("user")

	_, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, m.SetLastTap(addr, 0))
	ts, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.True(t, claimed, "a stored zero timestamp is a real claim, not absence")
	require.Zero(t, ts)

	require.NoError(t, m.SetLastTap(addr, 1234))
	ts, claimed, err = m.LastTap(addr)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, uint64(1234), ts)
}

func TestBalanceRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("user")

	balance, err := m.Balance("TAP", addr)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, m.SetBalance("TAP", addr, big.NewInt(77)))
	balance, err = m.Balance("TAP", addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(77), balance)

	require.Error(t, m.SetBalance("TAP", addr, big.NewInt(-1)))
	require.Error(t, m.SetBalance("TAP", addr, nil))
}

func TestSnapshotRevertRestoresOverwrites(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("user")
	require.NoError(t, m.SetLastTap(addr, 100))

	snap := m.Snapshot()
	require.NoError(t, m.SetLastTap(addr, 200))
	require.NoError(t, m.SetBalance("TAP", addr, big.NewInt(5)))

	m.RevertToSnapshot(snap)

	ts, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, uint64(100), ts)

	balance, err := m.Balance("TAP", addr)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestSnapshotRevertRemovesCreates(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("first-time-user")

	snap := m.Snapshot()
	require.NoError(t, m.SetLastTap(addr, 50))
	m.RevertToSnapshot(snap)

	_, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.False(t, claimed, "reverting must restore key absence")
}

func TestNestedSnapshots(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("user")

	outer := m.Snapshot()
	require.NoError(t, m.SetLastTap(addr, 1))

	inner := m.Snapshot()
	require.NoError(t, m.SetLastTap(addr, 2))
	m.RevertToSnapshot(inner)

	ts, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, uint64(1), ts)

	m.RevertToSnapshot(outer)
	_, claimed, err = m.LastTap(addr)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestDiscardSnapshotsCommits(t *testing.T) {
	m := newTestManager(t)
	addr := []byte("user")

	snap := m.Snapshot()
	require.NoError(t, m.SetLastTap(addr, 9))
	m.DiscardSnapshots()

	// A stale revert must not undo committed writes.
	m.RevertToSnapshot(snap)
	ts, claimed, err := m.LastTap(addr)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, uint64(9), ts)
}

func TestEventsDrain(t *testing.T) {
	m := newTestManager(t)
	m.AppendEvent(&types.Event{Type: "dispenser.reward.paid", Attributes: map[string]string{"amount": "1"}})
	m.AppendEvent(nil)

	events := m.Events()
	require.Len(t, events, 1)

	drained := m.DrainEvents()
	require.Len(t, drained, 1)
	require.Empty(t, m.Events())
}
