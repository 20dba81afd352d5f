package vault

import "errors"

// Validation errors.
var (
	ErrInvalidConfig            = errors.New("vault config is invalid")
	ErrInvalidFeeConfig         = errors.New("fee must not exceed 100%")
	ErrInvalidReferralFeeConfig = errors.New("referral fee must not exceed 50%")
	ErrInvalidAllocationCap     = errors.New("allocation cap is out of range")
	ErrInvalidProposedWeights   = errors.New("proposed weights do not meet the required constraints")
	ErrInvalidVaultFlags        = errors.New("vault flags are invalid")
	ErrInvalidRecord            = errors.New("vault record is invalid")
	ErrUnsupportedVersion       = errors.New("vault record version is not supported")
)

// Freshness, halt and capacity errors.
var (
	ErrVaultIsNotRefreshed = errors.New("vault is not refreshed")
	ErrHaltedVault         = errors.New("vault operation is halted")
	ErrDepositCap          = errors.New("deposit would exceed the vault deposit cap")
	ErrInsufficientReserve = errors.New("vault does not hold enough idle reserve")
)
