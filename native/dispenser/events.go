package dispenser

import (
	"encoding/hex"
	"strconv"

	"tapfaucet/core/types"
)

const (
	eventInitialized = "dispenser.initialized"
	eventRewardPaid  = "dispenser.reward.paid"
	eventTapRejected = "dispenser.tap.rejected"
)

func emitInitialized(st State, cfg *Config) {
	if st == nil || cfg == nil {
		return
	}
	st.AppendEvent(&types.Event{Type: eventInitialized, Attributes: map[string]string{
		"admin":    hex.EncodeToString(cfg.Admin),
		"token":    cfg.TokenRef,
		"reward":   cfg.RewardAmount.String(),
		"cooldown": strconv.FormatUint(cfg.CooldownSeconds, 10),
	}})
}

func emitRewardPaid(st State, user []byte, amount string, paidAt uint64) {
	if st == nil {
		return
	}
	st.AppendEvent(&types.Event{Type: eventRewardPaid, Attributes: map[string]string{
		"user":   hex.EncodeToString(user),
		"amount": amount,
		"paidAt": strconv.FormatUint(paidAt, 10),
	}})
}

func emitTapRejected(st State, user []byte, reason string, extra map[string]string) {
	if st == nil {
		return
	}
	attrs := map[string]string{
		"user":   hex.EncodeToString(user),
		"reason": reason,
	}
	for k, v := range extra {
		attrs[k] = v
	}
	st.AppendEvent(&types.Event{Type: eventTapRejected, Attributes: attrs})
}
