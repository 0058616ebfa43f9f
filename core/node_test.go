package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tapfaucet/native/dispenser"
	"tapfaucet/storage"
)

var (
	aliceAddr = []byte("alice-address-bytes-")
	bobAddr   = []byte("bob-address-bytes---")
)

func newTestNode(t *testing.T, now *uint64) *Node {
	t.Helper()
	node := NewNode(storage.NewMemDB())
	node.SetClock(dispenser.ClockFunc(func() uint64 { return *now }))
	return node
}

func setupDispenser(t *testing.T, node *Node, reward int64, cooldown uint64, funding int64) {
	t.Helper()
	_, err := node.Initialize(&dispenser.Config{
		Admin:           []byte("admin-address-bytes-"),
		TokenRef:        "TAP",
		RewardAmount:    big.NewInt(reward),
		CooldownSeconds: cooldown,
	})
	require.NoError(t, err)
	if funding > 0 {
		_, err = node.FundDispenser(big.NewInt(funding))
		require.NoError(t, err)
	}
}

func TestNodeClaimScenario(t *testing.T) {
	now := uint64(0)
	node := newTestNode(t, &now)
	setupDispenser(t, node, 10, 60, 1000)

	// t=0: alice claims successfully.
	_, err := node.Tap(aliceAddr, aliceAddr)
	require.NoError(t, err)
	balance, err := node.BalanceOf(aliceAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), balance)

	// t=30: still cooling down.
	now = 30
	_, err = node.Tap(aliceAddr, aliceAddr)
	require.ErrorIs(t, err, dispenser.ErrCooldownActive)

	// t=5: bob claims independently of alice's state.
	now = 5
	_, err = node.Tap(bobAddr, bobAddr)
	require.NoError(t, err)
	bobBalance, err := node.BalanceOf(bobAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bobBalance)

	// t=61: alice may claim again.
	now = 61
	_, err = node.Tap(aliceAddr, aliceAddr)
	require.NoError(t, err)
	balance, err = node.BalanceOf(aliceAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20), balance)

	lastTap, claimed, err := node.LastTap(aliceAddr)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, uint64(61), lastTap)
}

func TestNodeRejectsSignerMismatch(t *testing.T) {
	now := uint64(0)
	node := newTestNode(t, &now)
	setupDispenser(t, node, 10, 60, 100)

	_, err := node.Tap(aliceAddr, bobAddr)
	require.ErrorIs(t, err, dispenser.ErrUnauthorized)

	_, claimed, err := node.LastTap(aliceAddr)
	require.NoError(t, err)
	require.False(t, claimed)
	balance, err := node.BalanceOf(aliceAddr)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestNodeTransferFailureIsAtomic(t *testing.T) {
	now := uint64(100)
	node := newTestNode(t, &now)
	// Reward 10 but only 10 funded: the second claim has to fail.
	setupDispenser(t, node, 10, 60, 10)

	_, err := node.Tap(aliceAddr, aliceAddr)
	require.NoError(t, err)

	now = 200
	_, err = node.Tap(bobAddr, bobAddr)
	require.ErrorIs(t, err, dispenser.ErrTransferFailed)

	// Bob was never paid, so bob must not be cooldown-locked.
	_, claimed, err := node.LastTap(bobAddr)
	require.NoError(t, err)
	require.False(t, claimed)
	bobBalance, err := node.BalanceOf(bobAddr)
	require.NoError(t, err)
	require.Zero(t, bobBalance.Sign())

	// After refunding the pool bob's claim goes through immediately.
	_, err = node.FundDispenser(big.NewInt(10))
	require.NoError(t, err)
	_, err = node.Tap(bobAddr, bobAddr)
	require.NoError(t, err)
}

func TestNodeInitializeIsWriteOnce(t *testing.T) {
	now := uint64(0)
	node := newTestNode(t, &now)
	setupDispenser(t, node, 10, 60, 0)

	_, err := node.Initialize(&dispenser.Config{
		Admin:           []byte("other-admin-bytes---"),
		TokenRef:        "OTHER",
		RewardAmount:    big.NewInt(99),
		CooldownSeconds: 1,
	})
	require.ErrorIs(t, err, dispenser.ErrAlreadyInitialized)

	cfg, err := node.Config()
	require.NoError(t, err)
	require.Equal(t, "TAP", cfg.TokenRef)
	require.Equal(t, big.NewInt(10), cfg.RewardAmount)
}

func TestNodeQueriesBeforeInitialization(t *testing.T) {
	now := uint64(0)
	node := newTestNode(t, &now)

	cfg, err := node.Config()
	require.NoError(t, err)
	require.Nil(t, cfg)

	_, err = node.BalanceOf(aliceAddr)
	require.ErrorIs(t, err, dispenser.ErrUninitialized)

	_, err = node.NextClaimAt(aliceAddr)
	require.ErrorIs(t, err, dispenser.ErrUninitialized)

	_, err = node.FundDispenser(big.NewInt(1))
	require.ErrorIs(t, err, dispenser.ErrUninitialized)
}

func TestNodeNextClaimAt(t *testing.T) {
	now := uint64(40)
	node := newTestNode(t, &now)
	setupDispenser(t, node, 10, 60, 100)

	next, err := node.NextClaimAt(aliceAddr)
	require.NoError(t, err)
	require.Zero(t, next)

	_, err = node.Tap(aliceAddr, aliceAddr)
	require.NoError(t, err)

	next, err = node.NextClaimAt(aliceAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), next)
}

func TestNodeEventsSurfacePayout(t *testing.T) {
	now := uint64(0)
	node := newTestNode(t, &now)
	setupDispenser(t, node, 10, 60, 100)

	events, err := node.Tap(aliceAddr, aliceAddr)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "dispenser.reward.paid", events[0].Type)
	require.Equal(t, "10", events[0].Attributes["amount"])
}

func TestMonotonicClockNeverGoesBackwards(t *testing.T) {
	clock := newMonotonicClock()
	clock.last = ^uint64(0) - 1

	// The wall clock is far behind the recorded floor; reads stay put.
	require.Equal(t, ^uint64(0)-1, clock.CurrentTime())
}
