package types

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a state-change record emitted after a call has fully applied
type Event interface {
	EventName() string
}

// EventSink receives every emitted event together with the emitting instance address.
// Sinks must not fail the originating call; they report their own errors.
type EventSink interface {
	Record(ctx context.Context, source common.Address, event Event)
}

// Metrics observes the outcome of every state-changing call
type Metrics interface {
	ObserveCall(component, operation string, err error)
}

// ═══════════════════════════════════════════════════════════════
// WEIGHT LEDGER EVENTS
// ═══════════════════════════════════════════════════════════════

// StakeEvent is emitted by Allocator.Stake
type StakeEvent struct {
	Staker     common.Address `json:"staker"`
	PositionID uint64         `json:"position_id"`
	Amount     *uint256.Int   `json:"amount"`
	Tier       uint8          `json:"tier"`
	Weight     *uint256.Int   `json:"weight"`
}

func (StakeEvent) EventName() string { return "Stake" }

// UnstakeEvent is emitted by Allocator.Unstake
type UnstakeEvent struct {
	Staker     common.Address `json:"staker"`
	PositionID uint64         `json:"position_id"`
	Amount     *uint256.Int   `json:"amount"`
	Weight     *uint256.Int   `json:"weight"`
}

func (UnstakeEvent) EventName() string { return "Unstake" }

// ═══════════════════════════════════════════════════════════════
// FACTORY EVENTS
// ═══════════════════════════════════════════════════════════════

// PresaleCreatedEvent is emitted by PresaleFactory.DeploySale
type PresaleCreatedEvent struct {
	Sale      common.Address `json:"sale"`
	Funder    common.Address `json:"funder"`
	SaleToken common.Address `json:"sale_token"`
}

func (PresaleCreatedEvent) EventName() string { return "PresaleCreated" }

// DeployerRoleEvent is emitted when the deployer role is granted or revoked
type DeployerRoleEvent struct {
	Account common.Address `json:"account"`
	Granted bool           `json:"granted"`
}

func (DeployerRoleEvent) EventName() string { return "DeployerRoleChanged" }

// ═══════════════════════════════════════════════════════════════
// SALE EVENTS
// ═══════════════════════════════════════════════════════════════

// FundEvent is emitted by Presale.Fund
type FundEvent struct {
	Funder common.Address `json:"funder"`
	Amount *uint256.Int   `json:"amount"`
}

func (FundEvent) EventName() string { return "Fund" }

// PurchaseEvent is emitted by Presale.Purchase
type PurchaseEvent struct {
	Buyer         common.Address `json:"buyer"`
	PaymentAmount *uint256.Int   `json:"payment_amount"`
	SaleAmount    *uint256.Int   `json:"sale_amount"`
}

func (PurchaseEvent) EventName() string { return "Purchase" }

// WithdrawEvent is emitted by Presale.Withdraw when value actually moves
type WithdrawEvent struct {
	Funder   common.Address `json:"funder"`
	Proceeds *uint256.Int   `json:"proceeds"`
	Fee      *uint256.Int   `json:"fee"`
	Unsold   *uint256.Int   `json:"unsold"`
}

func (WithdrawEvent) EventName() string { return "Withdraw" }

// SetLinearVestingEndTimeEvent is emitted by Presale.SetLinearVestingEndTime
type SetLinearVestingEndTimeEvent struct {
	VestingEnd int64 `json:"vesting_end"`
}

func (SetLinearVestingEndTimeEvent) EventName() string { return "SetLinearVestingEndTime" }

// ClaimEvent is emitted by Presale.Claim when a non-zero amount is released
type ClaimEvent struct {
	Buyer  common.Address `json:"buyer"`
	Amount *uint256.Int   `json:"amount"`
}

func (ClaimEvent) EventName() string { return "Claim" }
