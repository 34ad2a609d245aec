package types

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceScale is the fixed-point scale of unit prices: a unit price of PriceScale
// means one payment-token base unit buys one sale-token base unit.
const PriceScale uint64 = 1_000_000_000_000_000_000

// ═══════════════════════════════════════════════════════════════
// INTERFACES
// ═══════════════════════════════════════════════════════════════

// ISale is the capability every sale template implements
type ISale interface {
	// Address of the sale instance
	Address() common.Address

	// Fund pulls the full hard cap of sale tokens from the funder. Callable once.
	Fund(ctx context.Context, input FundInput) error

	// Purchase buys sale tokens with payment tokens during the active window
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseReceipt, error)

	// Withdraw moves raised proceeds to the funder and the fee to the treasury once the sale ended
	Withdraw(ctx context.Context, input WithdrawInput) (*WithdrawReceipt, error)

	// SetLinearVestingEndTime sets the timestamp at which entitlements are fully vested
	SetLinearVestingEndTime(ctx context.Context, input SetVestingInput) error

	// Claim releases the vested, unclaimed entitlement of a buyer. Zero is not an error.
	Claim(ctx context.Context, input ClaimInput) (*uint256.Int, error)

	// ═══════════════════════════════════════════════════════════════
	// READ ACCESSORS
	// ═══════════════════════════════════════════════════════════════

	Info() SaleInfo
	Status() SaleStatus
	WithdrawTime() int64
	TotalRaised() *uint256.Int
	TotalSold() *uint256.Int
	TotalClaimed() *uint256.Int
	Contributed(buyer common.Address) *uint256.Int
	Entitlement(buyer common.Address) *uint256.Int
	Claimed(buyer common.Address) *uint256.Int
	Claimable(buyer common.Address) *uint256.Int
}

// IAllocationSale is a sale whose per-buyer cap is derived from the weight ledger
type IAllocationSale interface {
	ISale
	// AllocationOf returns the sale-token cap of buyer given current ledger weights
	AllocationOf(buyer common.Address) *uint256.Int
}

// ═══════════════════════════════════════════════════════════════
// ENUMS
// ═══════════════════════════════════════════════════════════════

// SaleKind selects the sale template variant
type SaleKind uint8

const (
	SaleKindPresale    SaleKind = iota // flat price, optional contribution bounds
	SaleKindAllocation                 // cap derived from ledger weight or tier allocations
	SaleKindPrivate                    // whitelist-only, eligibility roots required
)

func (k SaleKind) String() string {
	switch k {
	case SaleKindPresale:
		return "presale"
	case SaleKindAllocation:
		return "allocation"
	case SaleKindPrivate:
		return "private"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseSaleKind maps a kind name to its SaleKind
func ParseSaleKind(name string) (SaleKind, error) {
	switch name {
	case "presale", "":
		return SaleKindPresale, nil
	case "allocation":
		return SaleKindAllocation, nil
	case "private":
		return SaleKindPrivate, nil
	default:
		return 0, fmt.Errorf("sale kind must be one of: presale, allocation, private, got %s", name)
	}
}

// SaleStatus is the phase of a sale, derived from the funding flag and the clock
type SaleStatus uint8

const (
	SaleStatusUnfunded SaleStatus = iota
	SaleStatusBeforeStart
	SaleStatusActive
	SaleStatusEnded // claims and withdrawals open
)

func (s SaleStatus) String() string {
	switch s {
	case SaleStatusUnfunded:
		return "unfunded"
	case SaleStatusBeforeStart:
		return "before_start"
	case SaleStatusActive:
		return "active"
	case SaleStatusEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ═══════════════════════════════════════════════════════════════
// INPUT TYPES
// ═══════════════════════════════════════════════════════════════

// FundInput contains parameters for funding a sale
type FundInput struct {
	Caller common.Address
	Amount *uint256.Int // Must equal the hard cap
}

// Validate checks if FundInput is valid
func (f *FundInput) Validate() error {
	if f.Caller == (common.Address{}) {
		return fmt.Errorf("caller is required")
	}
	if f.Amount == nil {
		return fmt.Errorf("amount is required")
	}
	return nil
}

// EligibilityProof proves membership of the buyer in one of the sale's merkle roots
type EligibilityProof struct {
	TierIndex int           // Index of the root (and tier allocation) the proof is against
	Siblings  []common.Hash // Sibling hashes from leaf to root
}

// PurchaseInput contains parameters for buying into a sale
type PurchaseInput struct {
	Buyer         common.Address
	PaymentAmount *uint256.Int      // Payment-token base units offered
	Proof         *EligibilityProof // Required when the sale has eligibility roots
}

// Validate checks if PurchaseInput is valid
func (p *PurchaseInput) Validate() error {
	if p.Buyer == (common.Address{}) {
		return fmt.Errorf("buyer is required")
	}
	if p.PaymentAmount == nil || p.PaymentAmount.IsZero() {
		return fmt.Errorf("payment_amount must be positive")
	}
	if p.Proof != nil && p.Proof.TierIndex < 0 {
		return fmt.Errorf("proof tier_index must be non-negative, got %d", p.Proof.TierIndex)
	}
	return nil
}

// WithdrawInput contains parameters for withdrawing proceeds
type WithdrawInput struct {
	Caller common.Address // Funder or treasury
}

// SetVestingInput contains parameters for setting the linear vesting end
type SetVestingInput struct {
	Caller     common.Address
	VestingEnd int64 // unix seconds, must be after the sale end
}

// Validate checks if SetVestingInput is valid
func (s *SetVestingInput) Validate() error {
	if s.Caller == (common.Address{}) {
		return fmt.Errorf("caller is required")
	}
	if s.VestingEnd <= 0 {
		return fmt.Errorf("vesting_end must be a positive unix timestamp, got %d", s.VestingEnd)
	}
	return nil
}

// ClaimInput contains parameters for claiming sale tokens
type ClaimInput struct {
	Buyer common.Address
}

// ═══════════════════════════════════════════════════════════════
// OUTPUT TYPES
// ═══════════════════════════════════════════════════════════════

// PurchaseReceipt describes an accepted purchase
type PurchaseReceipt struct {
	Buyer       common.Address `json:"buyer"`
	Paid        *uint256.Int   `json:"paid"`        // payment units actually pulled
	Remainder   *uint256.Int   `json:"remainder"`   // offered but not pulled (below price granularity)
	SaleAmount  *uint256.Int   `json:"sale_amount"` // entitlement added
	Contributed *uint256.Int   `json:"contributed"` // buyer's cumulative contribution
}

// WithdrawReceipt describes value moved by a withdrawal. All zero on a repeat call.
type WithdrawReceipt struct {
	Proceeds *uint256.Int `json:"proceeds"` // to funder
	Fee      *uint256.Int `json:"fee"`      // to treasury
	Unsold   *uint256.Int `json:"unsold"`   // sale tokens returned to funder
}

// SaleInfo is the immutable configuration of a sale plus its mutable vesting end
type SaleInfo struct {
	Address          common.Address  `json:"address"`
	Kind             SaleKind        `json:"kind"`
	URI              string          `json:"uri"`
	Funder           common.Address  `json:"funder"`
	Admin            common.Address  `json:"admin"`
	Treasury         common.Address  `json:"treasury"`
	SaleToken        common.Address  `json:"sale_token"`
	PaymentToken     common.Address  `json:"payment_token"`
	UnitPrice        *uint256.Int    `json:"unit_price"`
	HardCap          *uint256.Int    `json:"hard_cap"`
	StartTime        int64           `json:"start_time"`
	EndTime          int64           `json:"end_time"`
	MinContribution  *uint256.Int    `json:"min_contribution"`
	MaxContribution  *uint256.Int    `json:"max_contribution"`
	EligibilityRoots []common.Hash   `json:"eligibility_roots"`
	TierAllocations  []*uint256.Int  `json:"tier_allocations"`
	FeeBps           uint64          `json:"fee_bps"`
	Ledger           *common.Address `json:"ledger,omitempty"`
	VestingEnd       int64           `json:"vesting_end"` // 0 = immediate claim
	Funded           bool            `json:"funded"`
}

// ═══════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════

// SaleConfig contains everything a template needs to construct a sale instance
type SaleConfig struct {
	Address      common.Address `validate:"required"` // custody address of the sale
	Params       SaleParams
	SaleToken    IERC20 `validate:"required"`
	PaymentToken IERC20 `validate:"required"`
	Ledger       IWeightReader // weight source for allocation sales; nil otherwise
}

// Validate checks if SaleConfig is valid
func (c *SaleConfig) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if c.SaleToken.Address() != c.Params.SaleToken {
		return fmt.Errorf("sale token %s does not match params sale_token %s", c.SaleToken.Address().Hex(), c.Params.SaleToken.Hex())
	}
	if c.PaymentToken.Address() != c.Params.PaymentToken {
		return fmt.Errorf("payment token %s does not match params payment_token %s", c.PaymentToken.Address().Hex(), c.Params.PaymentToken.Hex())
	}
	if c.Params.Kind == SaleKindAllocation && len(c.Params.TierAllocations) == 0 && c.Ledger == nil {
		return fmt.Errorf("allocation sales without tier allocations require a weight ledger")
	}
	return nil
}
