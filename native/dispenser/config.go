package dispenser

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// maxUint128 bounds the stored reward amount; maxInt128 bounds what the
// token ledger's signed transfer interface can carry.
var (
	maxUint128 = func() *big.Int {
		v := new(big.Int).Lsh(big.NewInt(1), 128)
		return v.Sub(v, big.NewInt(1))
	}()
	maxInt128 = func() *big.Int {
		v := new(big.Int).Lsh(big.NewInt(1), 127)
		return v.Sub(v, big.NewInt(1))
	}()
)

// Config is the write-once dispenser configuration. Presence of the stored
// record is the idempotency guard: once persisted it is never mutated.
type Config struct {
	Admin           []byte
	TokenRef        string
	RewardAmount    *big.Int
	CooldownSeconds uint64
}

// Clone returns a deep copy so callers can never alias the stored record.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{
		Admin:           append([]byte(nil), c.Admin...),
		TokenRef:        c.TokenRef,
		CooldownSeconds: c.CooldownSeconds,
	}
	if c.RewardAmount != nil {
		out.RewardAmount = new(big.Int).Set(c.RewardAmount)
	} else {
		out.RewardAmount = big.NewInt(0)
	}
	return out
}

// Validate rejects parameters that must never reach persistent state.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if len(c.Admin) == 0 {
		return fmt.Errorf("%w: admin identity required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.TokenRef) == "" {
		return fmt.Errorf("%w: token reference required", ErrInvalidConfig)
	}
	if c.RewardAmount == nil || c.RewardAmount.Sign() < 0 {
		return fmt.Errorf("%w: reward amount must be non-negative", ErrInvalidConfig)
	}
	if c.RewardAmount.Cmp(maxUint128) > 0 {
		return fmt.Errorf("%w: reward amount exceeds unsigned 128-bit range", ErrInvalidConfig)
	}
	return nil
}

// TransferAmount converts the stored unsigned 128-bit reward into the signed
// 128-bit amount the token ledger expects. It fails explicitly instead of
// wrapping or truncating.
func (c *Config) TransferAmount() (*big.Int, error) {
	if c == nil || c.RewardAmount == nil {
		return nil, ErrConfigCorrupt
	}
	reward, overflow := uint256.FromBig(c.RewardAmount)
	if overflow || c.RewardAmount.Sign() < 0 {
		return nil, ErrAmountOverflow
	}
	out := reward.ToBig()
	if out.Cmp(maxInt128) > 0 {
		return nil, ErrAmountOverflow
	}
	return out, nil
}
