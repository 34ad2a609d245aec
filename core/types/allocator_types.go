package types

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BasisPoints is the denominator for every bps-denominated rate (1 bps = 0.01%)
const BasisPoints = 10_000

// ═══════════════════════════════════════════════════════════════
// INTERFACES
// ═══════════════════════════════════════════════════════════════

// IWeightReader is the read-only view of the weight ledger that allocation sales consult
type IWeightReader interface {
	// Address of the ledger instance
	Address() common.Address
	// UserWeight returns the sum of live position weights for account
	UserWeight(account common.Address) *uint256.Int
	// TotalWeight returns the sum of all live position weights
	TotalWeight() *uint256.Int
}

// IAllocator is the staking weight ledger
type IAllocator interface {
	IWeightReader

	// Stake pulls amount of the stake token from the staker and opens a position in the given tier
	Stake(ctx context.Context, input StakeInput) (*StakePosition, error)

	// Unstake returns the principal of a matured position and removes its weight
	Unstake(ctx context.Context, input UnstakeInput) (*StakePosition, error)

	// Multiplier returns the weight multiplier in bps for a tier
	Multiplier(tier uint8) (uint64, error)

	// Tiers returns the configured tier ladder
	Tiers() []StakeTier

	// Position returns a live position by id
	Position(id uint64) (*StakePosition, error)

	// PositionsOf returns the live positions owned by account, ordered by id
	PositionsOf(account common.Address) []StakePosition

	// TotalStaked returns the principal held in custody across all positions
	TotalStaked() *uint256.Int
}

// ═══════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════

// StakeTier is a lock-duration/multiplier bucket selectable at stake time
type StakeTier struct {
	LockDuration  time.Duration `json:"lock_duration" mapstructure:"lock_duration"`
	MultiplierBps uint64        `json:"multiplier_bps" mapstructure:"multiplier_bps"`
}

// AllocatorConfig contains the construction parameters of a weight ledger
type AllocatorConfig struct {
	Owner      common.Address `validate:"required"`
	Address    common.Address `validate:"required"` // custody address of the ledger
	StakeToken IERC20         `validate:"required"`
	Tiers      []StakeTier    `validate:"required,min=1,max=255"`
}

// Validate checks if AllocatorConfig is valid
func (c *AllocatorConfig) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	for i, tier := range c.Tiers {
		if tier.MultiplierBps == 0 {
			return fmt.Errorf("tier %d: multiplier_bps must be positive", i)
		}
		if tier.LockDuration < 0 {
			return fmt.Errorf("tier %d: lock_duration must be non-negative, got %s", i, tier.LockDuration)
		}
	}
	return nil
}

// DefaultStakeTiers builds the four-step ladder used by launchpad deployments.
// Tier i multiplies principal by 1 + i*rateBps/10000 and locks for 0, 30, 90 or 180 days.
func DefaultStakeTiers(rateBps uint64) []StakeTier {
	const day = 24 * time.Hour
	locks := []time.Duration{0, 30 * day, 90 * day, 180 * day}

	tiers := make([]StakeTier, len(locks))
	for i, lock := range locks {
		tiers[i] = StakeTier{
			LockDuration:  lock,
			MultiplierBps: BasisPoints + uint64(i)*rateBps,
		}
	}
	return tiers
}

// ═══════════════════════════════════════════════════════════════
// INPUT TYPES
// ═══════════════════════════════════════════════════════════════

// StakeInput contains parameters for opening a stake position
type StakeInput struct {
	Staker common.Address // Account the principal is pulled from
	Amount *uint256.Int   // Principal in stake-token base units
	Tier   uint8          // Index into the tier ladder
}

// Validate checks if StakeInput is valid
func (s *StakeInput) Validate() error {
	if s.Staker == (common.Address{}) {
		return fmt.Errorf("staker is required")
	}
	if s.Amount == nil || s.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// UnstakeInput contains parameters for closing a stake position
type UnstakeInput struct {
	Staker     common.Address // Must own the position
	PositionID uint64
}

// Validate checks if UnstakeInput is valid
func (u *UnstakeInput) Validate() error {
	if u.Staker == (common.Address{}) {
		return fmt.Errorf("staker is required")
	}
	if u.PositionID == 0 {
		return fmt.Errorf("position_id must be positive")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════
// OUTPUT TYPES
// ═══════════════════════════════════════════════════════════════

// StakePosition is a single locked stake. Weight is fixed when the position opens.
type StakePosition struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	Amount    *uint256.Int   `json:"amount"`
	Tier      uint8          `json:"tier"`
	LockStart int64          `json:"lock_start"` // unix seconds
	UnlockAt  int64          `json:"unlock_at"`  // unix seconds
	Weight    *uint256.Int   `json:"weight"`
}

// Clone returns a deep copy so callers cannot mutate ledger state
func (p StakePosition) Clone() StakePosition {
	p.Amount = new(uint256.Int).Set(p.Amount)
	p.Weight = new(uint256.Int).Set(p.Weight)
	return p
}
