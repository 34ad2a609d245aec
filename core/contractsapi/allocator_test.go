package contractsapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// ═══════════════════════════════════════════════════════════════
// STAKE TESTS
// ═══════════════════════════════════════════════════════════════

func TestAllocatorStakeWeights(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))

	tests := []struct {
		name           string
		staker         common.Address
		amount         uint64
		tier           uint8
		expectedWeight uint64
		expectedUnlock time.Duration
	}{
		{name: "tier 0 is 1x and unlocked", staker: alice, amount: 1_000, tier: 0, expectedWeight: 1_000},
		{name: "tier 1 is 1.25x for 30 days", staker: alice, amount: 1_000, tier: 1, expectedWeight: 1_250, expectedUnlock: 30 * 24 * time.Hour},
		{name: "tier 3 is 1.75x for 180 days", staker: bob, amount: 400, tier: 3, expectedWeight: 700, expectedUnlock: 180 * 24 * time.Hour},
		{name: "weight truncates", staker: carol, amount: 3, tier: 1, expectedWeight: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := f.stakeFor(allocator, tt.staker, tt.amount, tt.tier)
			assert.Equal(t, tt.expectedWeight, pos.Weight.Uint64())
			assert.Equal(t, tt.amount, pos.Amount.Uint64())
			assert.Equal(t, testStart, pos.LockStart)
			assert.Equal(t, testStart+int64(tt.expectedUnlock/time.Second), pos.UnlockAt)
		})
	}

	assert.Equal(t, uint64(2_250), allocator.UserWeight(alice).Uint64())
	assert.Equal(t, uint64(700), allocator.UserWeight(bob).Uint64())
	assert.Equal(t, uint64(2_953), allocator.TotalWeight().Uint64())
	assert.Equal(t, uint64(2_403), allocator.TotalStaked().Uint64())
	assert.Equal(t, uint64(2_403), f.stake.BalanceOf(ledgerAddr).Uint64())

	positions := allocator.PositionsOf(alice)
	require.Len(t, positions, 2)
	assert.Equal(t, uint64(1), positions[0].ID)
	assert.Equal(t, uint64(2), positions[1].ID)

	assert.Equal(t, []string{"Stake", "Stake", "Stake", "Stake"}, f.events.names())
}

func TestAllocatorStakeRejects(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))

	t.Run("unknown tier", func(t *testing.T) {
		f.mint(f.stake, alice, 10)
		f.approve(f.stake, alice, ledgerAddr, 10)
		_, err := allocator.Stake(f.ctx, types.StakeInput{Staker: alice, Amount: u(10), Tier: 4})
		require.ErrorIs(t, err, types.ErrInvalidTier)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := allocator.Stake(f.ctx, types.StakeInput{Staker: alice, Amount: u(0)})
		require.ErrorIs(t, err, types.ErrInvalidParams)
	})

	t.Run("missing allowance", func(t *testing.T) {
		f.mint(f.stake, bob, 10)
		_, err := allocator.Stake(f.ctx, types.StakeInput{Staker: bob, Amount: u(10)})
		require.ErrorIs(t, err, types.ErrTransferFailed)
	})

	// nothing was recorded by the failed calls
	assert.True(t, allocator.TotalWeight().IsZero())
	assert.True(t, allocator.TotalStaked().IsZero())
	assert.Empty(t, allocator.PositionsOf(alice))
	assert.Empty(t, f.events.names())
}

// ═══════════════════════════════════════════════════════════════
// UNSTAKE TESTS
// ═══════════════════════════════════════════════════════════════

func TestAllocatorUnstake(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))

	locked := f.stakeFor(allocator, alice, 100, 1)
	free := f.stakeFor(allocator, alice, 50, 0)

	_, err := allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: locked.ID})
	require.ErrorIs(t, err, types.ErrStillLocked)

	_, err = allocator.Unstake(f.ctx, types.UnstakeInput{Staker: bob, PositionID: free.ID})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: 99})
	require.ErrorIs(t, err, types.ErrPositionNotFound)

	pos, err := allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: free.ID})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), pos.Amount.Uint64())
	assert.Equal(t, uint64(50), f.stake.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(125), allocator.UserWeight(alice).Uint64())

	_, err = allocator.Position(free.ID)
	require.ErrorIs(t, err, types.ErrPositionNotFound)

	// a matured lock can be withdrawn
	f.warp(locked.UnlockAt)
	_, err = allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: locked.ID})
	require.NoError(t, err)
	assert.True(t, allocator.UserWeight(alice).IsZero())
	assert.True(t, allocator.TotalWeight().IsZero())
	assert.Equal(t, uint64(150), f.stake.BalanceOf(alice).Uint64())
}

func TestAllocatorUnstakeRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))
	pos := f.stakeFor(allocator, alice, 100, 0)

	f.stake.SetTransferHook(func(_ context.Context, from, _ common.Address, _ *uint256.Int) error {
		if from == ledgerAddr {
			return errors.New("token paused")
		}
		return nil
	})

	_, err := allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: pos.ID})
	require.ErrorIs(t, err, types.ErrTransferFailed)

	restored, err := allocator.Position(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.Weight, restored.Weight)
	assert.Equal(t, uint64(100), allocator.UserWeight(alice).Uint64())
	assert.Equal(t, uint64(100), allocator.TotalStaked().Uint64())

	f.stake.SetTransferHook(nil)
	_, err = allocator.Unstake(f.ctx, types.UnstakeInput{Staker: alice, PositionID: pos.ID})
	require.NoError(t, err)
}

func TestAllocatorReentrancy(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(0))
	f.mint(f.stake, alice, 100)
	f.approve(f.stake, alice, ledgerAddr, 100)

	var reentryErr error
	f.stake.SetTransferHook(func(ctx context.Context, _, _ common.Address, _ *uint256.Int) error {
		_, reentryErr = allocator.Stake(ctx, types.StakeInput{Staker: alice, Amount: u(1)})
		return nil
	})

	_, err := allocator.Stake(f.ctx, types.StakeInput{Staker: alice, Amount: u(10)})
	require.NoError(t, err)
	require.ErrorIs(t, reentryErr, types.ErrReentrantCall)
	assert.Equal(t, uint64(10), allocator.TotalStaked().Uint64())
	assert.Len(t, allocator.PositionsOf(alice), 1)
}

func TestAllocatorReads(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(1_000))

	multiplier, err := allocator.Multiplier(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_000), multiplier)

	_, err = allocator.Multiplier(4)
	require.ErrorIs(t, err, types.ErrInvalidTier)

	tiers := allocator.Tiers()
	tiers[0].MultiplierBps = 1
	again, err := allocator.Multiplier(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), again)

	pos := f.stakeFor(allocator, alice, 10, 0)
	got, err := allocator.Position(pos.ID)
	require.NoError(t, err)
	got.Amount.SetUint64(999)
	assert.Equal(t, uint64(10), allocator.TotalStaked().Uint64())
	assert.Equal(t, admin, allocator.Owner())
	assert.Equal(t, ledgerAddr, allocator.Address())
}

// ═══════════════════════════════════════════════════════════════
// CONCURRENCY TESTS
// ═══════════════════════════════════════════════════════════════

func TestAllocatorConcurrentStakes(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))

	const stakesEach, amount = 10, 100
	stakers := []common.Address{alice, bob, carol, admin}
	for _, staker := range stakers {
		f.mint(f.stake, staker, stakesEach*amount)
		f.approve(f.stake, staker, ledgerAddr, stakesEach*amount)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[uint64]bool)
		errs []error
	)
	for _, staker := range stakers {
		for i := 0; i < stakesEach; i++ {
			wg.Add(1)
			go func(staker common.Address, tier uint8) {
				defer wg.Done()
				pos, err := allocator.Stake(f.ctx, types.StakeInput{Staker: staker, Amount: uint256.NewInt(amount), Tier: tier})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids[pos.ID] = true
			}(staker, uint8(i%4))
		}
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, ids, len(stakers)*stakesEach)

	// tiers 0,1,2,3,0,1,2,3,0,1 at 1x, 1.25x, 1.5x and 1.75x
	sum := new(uint256.Int)
	for _, staker := range stakers {
		weight := allocator.UserWeight(staker)
		assert.Equal(t, uint64(1_325), weight.Uint64(), staker.Hex())
		assert.Len(t, allocator.PositionsOf(staker), stakesEach)
		sum.Add(sum, weight)
	}
	assert.Equal(t, sum, allocator.TotalWeight())
	assert.Equal(t, uint64(len(stakers)*stakesEach*amount), allocator.TotalStaked().Uint64())
	assert.Equal(t, allocator.TotalStaked(), f.stake.BalanceOf(ledgerAddr))
	assert.True(t, f.stake.BalanceOf(alice).IsZero())
}
