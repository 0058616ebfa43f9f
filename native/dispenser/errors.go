package dispenser

import "errors"

var (
	// ErrAlreadyInitialized is returned when initialize is attempted after a
	// configuration record already exists. The first writer wins; nothing is
	// mutated afterwards.
	ErrAlreadyInitialized = errors.New("dispenser: already initialized")
	// ErrUninitialized is returned by tap before any configuration exists.
	ErrUninitialized = errors.New("dispenser: not initialized")
	// ErrUnauthorized is returned when the transaction signer does not match
	// the claiming user.
	ErrUnauthorized = errors.New("dispenser: unauthorized")
	// ErrCooldownActive is returned while the per-user cooldown has not yet
	// elapsed. Callers may retry once it has.
	ErrCooldownActive = errors.New("dispenser: cooldown active")
	// ErrTransferFailed wraps a failure reported by the token ledger. The
	// cooldown timestamp is rolled back before it is returned.
	ErrTransferFailed = errors.New("dispenser: transfer failed")
	// ErrConfigCorrupt is returned when the configuration record exists but
	// cannot be read back.
	ErrConfigCorrupt = errors.New("dispenser: config corrupt")
	// ErrAmountOverflow is returned when the stored reward amount cannot be
	// represented as a positive signed 128-bit transfer amount. The
	// conversion must never wrap silently.
	ErrAmountOverflow = errors.New("dispenser: reward amount overflows signed 128-bit range")
	// ErrInvalidConfig rejects initialize parameters before anything is
	// persisted.
	ErrInvalidConfig = errors.New("dispenser: invalid config")
)
