package contractsapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

const componentAllocator = "allocator"

// Allocator is the staking weight ledger. Each stake opens a position whose
// weight (principal × tier multiplier) is fixed for the position's lifetime.
type Allocator struct {
	guard callGuard
	opts  options
	cfg   types.AllocatorConfig

	mu          sync.RWMutex
	positions   map[uint64]types.StakePosition
	userWeight  map[common.Address]*uint256.Int
	totalWeight *uint256.Int
	totalStaked *uint256.Int
	nextID      uint64
}

// Compile-time check that Allocator implements IAllocator
var _ types.IAllocator = (*Allocator)(nil)

// NewAllocator creates a weight ledger holding stakes at cfg.Address
func NewAllocator(cfg types.AllocatorConfig, opts ...Option) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid allocator config")
	}

	tiers := make([]types.StakeTier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	cfg.Tiers = tiers

	a := &Allocator{
		guard:       callGuard{instance: cfg.Address},
		opts:        newOptions(componentAllocator, opts),
		cfg:         cfg,
		positions:   make(map[uint64]types.StakePosition),
		userWeight:  make(map[common.Address]*uint256.Int),
		totalWeight: new(uint256.Int),
		totalStaked: new(uint256.Int),
		nextID:      1,
	}
	a.opts.logger = a.opts.logger.With(zap.String("allocator", cfg.Address.Hex()))
	return a, nil
}

// ═══════════════════════════════════════════════════════════════
// STATE-CHANGING OPERATIONS
// ═══════════════════════════════════════════════════════════════

// Stake pulls input.Amount of the stake token from the staker and opens a position.
// The weight is amount × multiplierBps(tier) / 10000 and never changes afterwards.
func (a *Allocator) Stake(ctx context.Context, input types.StakeInput) (pos *types.StakePosition, err error) {
	defer func() { a.opts.observe(componentAllocator, "stake", err) }()

	if err := input.Validate(); err != nil {
		return nil, invalidParams(err)
	}
	if int(input.Tier) >= len(a.cfg.Tiers) {
		return nil, errors.Wrapf(types.ErrInvalidTier, "tier %d not configured (have %d tiers)", input.Tier, len(a.cfg.Tiers))
	}
	tier := a.cfg.Tiers[input.Tier]

	ctx, release, err := a.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	weight, overflow := util.MulDiv(input.Amount, uint256.NewInt(tier.MultiplierBps), uint256.NewInt(types.BasisPoints))
	if overflow {
		return nil, invalidParams(fmt.Errorf("weight of %s overflows", input.Amount.Dec()))
	}

	// every total is computed before the pull so the ledger update below cannot fail
	a.mu.RLock()
	newUser, errUser := util.Add(a.weightOf(input.Staker), weight)
	newTotal, errTotal := util.Add(a.totalWeight, weight)
	newStaked, errStaked := util.Add(a.totalStaked, input.Amount)
	a.mu.RUnlock()
	if err := firstErr(errUser, errTotal, errStaked); err != nil {
		return nil, invalidParams(err)
	}

	if err := a.cfg.StakeToken.TransferFrom(ctx, a.cfg.Address, input.Staker, a.cfg.Address, input.Amount); err != nil {
		a.opts.logger.Debug("stake pull rejected", zap.String("staker", input.Staker.Hex()), zap.Error(err))
		return nil, transferFailed("pull stake", err)
	}

	now := a.opts.now()
	a.mu.Lock()
	position := types.StakePosition{
		ID:        a.nextID,
		Owner:     input.Staker,
		Amount:    util.Copy(input.Amount),
		Tier:      input.Tier,
		LockStart: now,
		UnlockAt:  now + int64(tier.LockDuration/time.Second),
		Weight:    weight,
	}
	a.nextID++
	a.positions[position.ID] = position
	a.userWeight[input.Staker] = newUser
	a.totalWeight = newTotal
	a.totalStaked = newStaked
	a.mu.Unlock()

	a.opts.logger.Info("staked",
		zap.String("staker", input.Staker.Hex()),
		zap.Uint64("position", position.ID),
		zap.String("amount", input.Amount.Dec()),
		zap.Uint8("tier", input.Tier),
		zap.String("weight", weight.Dec()),
	)
	a.opts.emit(ctx, a.cfg.Address, types.StakeEvent{
		Staker:     input.Staker,
		PositionID: position.ID,
		Amount:     util.Copy(position.Amount),
		Tier:       position.Tier,
		Weight:     util.Copy(weight),
	})

	out := position.Clone()
	return &out, nil
}

// Unstake closes a matured position and returns its principal to the owner
func (a *Allocator) Unstake(ctx context.Context, input types.UnstakeInput) (pos *types.StakePosition, err error) {
	defer func() { a.opts.observe(componentAllocator, "unstake", err) }()

	if err := input.Validate(); err != nil {
		return nil, invalidParams(err)
	}

	ctx, release, err := a.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	a.mu.RLock()
	position, ok := a.positions[input.PositionID]
	a.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(types.ErrPositionNotFound, "position %d", input.PositionID)
	}
	if position.Owner != input.Staker {
		return nil, errors.Wrapf(types.ErrUnauthorized, "position %d is not owned by %s", input.PositionID, input.Staker.Hex())
	}
	if now := a.opts.now(); now < position.UnlockAt {
		return nil, errors.Wrapf(types.ErrStillLocked, "position %d unlocks at %d, now %d", input.PositionID, position.UnlockAt, now)
	}

	// effects before the transfer out; restored if the token rejects it
	a.mu.Lock()
	a.removePosition(position)
	a.mu.Unlock()

	if err := a.cfg.StakeToken.Transfer(ctx, a.cfg.Address, position.Owner, position.Amount); err != nil {
		a.mu.Lock()
		a.restorePosition(position)
		a.mu.Unlock()
		return nil, transferFailed("return stake", err)
	}

	a.opts.logger.Info("unstaked",
		zap.String("staker", position.Owner.Hex()),
		zap.Uint64("position", position.ID),
		zap.String("amount", position.Amount.Dec()),
	)
	a.opts.emit(ctx, a.cfg.Address, types.UnstakeEvent{
		Staker:     position.Owner,
		PositionID: position.ID,
		Amount:     util.Copy(position.Amount),
		Weight:     util.Copy(position.Weight),
	})

	out := position.Clone()
	return &out, nil
}

// removePosition drops a position and its weight. Caller holds mu.
// Totals always contain the position, so the subtractions cannot underflow.
func (a *Allocator) removePosition(position types.StakePosition) {
	delete(a.positions, position.ID)

	user := new(uint256.Int).Sub(a.weightOf(position.Owner), position.Weight)
	if user.IsZero() {
		delete(a.userWeight, position.Owner)
	} else {
		a.userWeight[position.Owner] = user
	}
	a.totalWeight = new(uint256.Int).Sub(a.totalWeight, position.Weight)
	a.totalStaked = new(uint256.Int).Sub(a.totalStaked, position.Amount)
}

// restorePosition undoes removePosition. Caller holds mu.
func (a *Allocator) restorePosition(position types.StakePosition) {
	a.positions[position.ID] = position
	a.userWeight[position.Owner] = new(uint256.Int).Add(a.weightOf(position.Owner), position.Weight)
	a.totalWeight = new(uint256.Int).Add(a.totalWeight, position.Weight)
	a.totalStaked = new(uint256.Int).Add(a.totalStaked, position.Amount)
}

// ═══════════════════════════════════════════════════════════════
// READ OPERATIONS
// ═══════════════════════════════════════════════════════════════

// Address returns the custody address of the ledger
func (a *Allocator) Address() common.Address {
	return a.cfg.Address
}

// Owner returns the ledger owner
func (a *Allocator) Owner() common.Address {
	return a.cfg.Owner
}

// StakeToken returns the token positions are denominated in
func (a *Allocator) StakeToken() types.IERC20 {
	return a.cfg.StakeToken
}

// UserWeight returns the sum of live position weights owned by account
func (a *Allocator) UserWeight(account common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return util.Copy(a.weightOf(account))
}

// weightOf reads a user weight without copying. Caller holds mu.
func (a *Allocator) weightOf(account common.Address) *uint256.Int {
	if w, ok := a.userWeight[account]; ok {
		return w
	}
	return new(uint256.Int)
}

// TotalWeight returns the sum of all live position weights
func (a *Allocator) TotalWeight() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return util.Copy(a.totalWeight)
}

// TotalStaked returns the principal held across all live positions
func (a *Allocator) TotalStaked() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return util.Copy(a.totalStaked)
}

// Multiplier returns the multiplier of a tier in bps
func (a *Allocator) Multiplier(tier uint8) (uint64, error) {
	if int(tier) >= len(a.cfg.Tiers) {
		return 0, errors.Wrapf(types.ErrInvalidTier, "tier %d not configured", tier)
	}
	return a.cfg.Tiers[tier].MultiplierBps, nil
}

// Tiers returns a copy of the tier ladder
func (a *Allocator) Tiers() []types.StakeTier {
	tiers := make([]types.StakeTier, len(a.cfg.Tiers))
	copy(tiers, a.cfg.Tiers)
	return tiers
}

// Position returns a live position by id
func (a *Allocator) Position(id uint64) (*types.StakePosition, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	position, ok := a.positions[id]
	if !ok {
		return nil, errors.Wrapf(types.ErrPositionNotFound, "position %d", id)
	}
	out := position.Clone()
	return &out, nil
}

// PositionsOf returns the live positions owned by account ordered by id
func (a *Allocator) PositionsOf(account common.Address) []types.StakePosition {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []types.StakePosition
	for _, position := range a.positions {
		if position.Owner == account {
			out = append(out, position.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
