package types

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// DefaultMaxFeeBps is the protocol fee ceiling a sale may be created with (10%)
	DefaultMaxFeeBps = 1_000
	// DefaultMaxModuleSize bounds the template code blob accepted by DeploySale
	DefaultMaxModuleSize = 24_576
)

// ═══════════════════════════════════════════════════════════════
// INTERFACES
// ═══════════════════════════════════════════════════════════════

// IPresaleFactory instantiates sales from registered templates and keeps the sale registry
type IPresaleFactory interface {
	// Address of the factory; sale addresses are derived from it
	Address() common.Address

	// DeploySale instantiates the template identified by the module code and registers the sale.
	// Either the sale is created and registered, or nothing changes.
	DeploySale(ctx context.Context, input DeploySaleInput) (common.Address, error)

	// Sale returns a deployed sale instance
	Sale(address common.Address) (ISale, error)

	// Record returns the registry entry of a deployed sale
	Record(address common.Address) (*SaleRecord, error)

	// Sales returns every registry entry in creation order
	Sales() []SaleRecord

	// SalesByCreator returns the registry entries created by creator
	SalesByCreator(creator common.Address) []SaleRecord

	// ═══════════════════════════════════════════════════════════════
	// ROLE MANAGEMENT
	// ═══════════════════════════════════════════════════════════════

	GrantDeployer(ctx context.Context, input DeployerRoleInput) error
	RevokeDeployer(ctx context.Context, input DeployerRoleInput) error
	IsDeployer(account common.Address) bool
}

// ═══════════════════════════════════════════════════════════════
// INPUT TYPES
// ═══════════════════════════════════════════════════════════════

// SaleParams is the configuration bundle a sale is created with
type SaleParams struct {
	URI              string         // Project metadata location
	Funder           common.Address // Supplies sale tokens, receives proceeds
	Admin            common.Address // Sale owner; defaults to the deploying caller
	Treasury         common.Address // Fee recipient; defaults to the factory fee collector
	UnitPrice        *uint256.Int   // Payment units per sale unit, scaled by PriceScale
	HardCap          *uint256.Int   // Maximum sale-token units distributed
	SaleToken        common.Address
	PaymentToken     common.Address
	StartTime        int64          // unix seconds
	Duration         int64          // seconds
	MinContribution  *uint256.Int   // Per purchase, payment units; nil or zero = none
	MaxContribution  *uint256.Int   // Cumulative per buyer, payment units; nil or zero = none
	EligibilityRoots []common.Hash  // Merkle roots over keccak256(buyer); empty = open sale
	TierAllocations  []*uint256.Int // Flat sale-token caps, one per eligibility root; empty = none
	FeeBps           uint64
	Kind             SaleKind
}

// EndTime returns StartTime + Duration
func (p *SaleParams) EndTime() int64 {
	return p.StartTime + p.Duration
}

// Validate checks the intrinsic consistency of SaleParams.
// Time and fee ceiling checks depend on the factory and are done there.
func (p *SaleParams) Validate() error {
	if p.Funder == (common.Address{}) {
		return fmt.Errorf("funder is required")
	}
	if p.SaleToken == (common.Address{}) {
		return fmt.Errorf("sale_token is required")
	}
	if p.PaymentToken == (common.Address{}) {
		return fmt.Errorf("payment_token is required")
	}
	if p.SaleToken == p.PaymentToken {
		return fmt.Errorf("sale_token and payment_token must differ")
	}
	if p.UnitPrice == nil || p.UnitPrice.IsZero() {
		return fmt.Errorf("unit_price must be positive")
	}
	if p.HardCap == nil || p.HardCap.IsZero() {
		return fmt.Errorf("hard_cap must be positive")
	}
	if p.StartTime <= 0 {
		return fmt.Errorf("start_time must be a positive unix timestamp, got %d", p.StartTime)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %d", p.Duration)
	}
	if p.Duration > math.MaxInt64-p.StartTime {
		return fmt.Errorf("start_time %d + duration %d overflows the end time", p.StartTime, p.Duration)
	}
	if p.MinContribution != nil && p.MaxContribution != nil && !p.MaxContribution.IsZero() &&
		p.MinContribution.Gt(p.MaxContribution) {
		return fmt.Errorf("min_contribution %s exceeds max_contribution %s", p.MinContribution.Dec(), p.MaxContribution.Dec())
	}
	if p.FeeBps > BasisPoints {
		return fmt.Errorf("fee_bps must be at most %d, got %d", BasisPoints, p.FeeBps)
	}
	if len(p.TierAllocations) > 0 && len(p.TierAllocations) != len(p.EligibilityRoots) {
		return fmt.Errorf("tier_allocations must have one entry per eligibility root, got %d allocations for %d roots",
			len(p.TierAllocations), len(p.EligibilityRoots))
	}
	for i, alloc := range p.TierAllocations {
		if alloc == nil || alloc.IsZero() {
			return fmt.Errorf("tier_allocations[%d] must be positive", i)
		}
	}
	for i, root := range p.EligibilityRoots {
		if root == (common.Hash{}) {
			return fmt.Errorf("eligibility_roots[%d] must not be empty", i)
		}
	}
	switch p.Kind {
	case SaleKindPresale, SaleKindAllocation:
	case SaleKindPrivate:
		if len(p.EligibilityRoots) == 0 {
			return fmt.Errorf("private sales require at least one eligibility root")
		}
	default:
		return fmt.Errorf("unknown sale kind %d", p.Kind)
	}
	return nil
}

// DeploySaleInput contains parameters for creating a sale
type DeploySaleInput struct {
	Caller     common.Address // Admin or granted deployer
	ModuleCode []byte         // Opaque template code; its keccak256 selects the template
	Params     SaleParams
}

// Validate checks if DeploySaleInput is valid
func (d *DeploySaleInput) Validate() error {
	if d.Caller == (common.Address{}) {
		return fmt.Errorf("caller is required")
	}
	if len(d.ModuleCode) == 0 {
		return fmt.Errorf("module_code is required")
	}
	return d.Params.Validate()
}

// DeployerRoleInput contains parameters for granting or revoking the deployer role
type DeployerRoleInput struct {
	Caller  common.Address // Must be the factory admin
	Account common.Address
}

// Validate checks if DeployerRoleInput is valid
func (d *DeployerRoleInput) Validate() error {
	if d.Caller == (common.Address{}) {
		return fmt.Errorf("caller is required")
	}
	if d.Account == (common.Address{}) {
		return fmt.Errorf("account is required")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════
// OUTPUT TYPES
// ═══════════════════════════════════════════════════════════════

// SaleRecord is an append-only registry entry for a deployed sale
type SaleRecord struct {
	Address    common.Address `json:"address"`
	Creator    common.Address `json:"creator"`
	CreatedAt  int64          `json:"created_at"` // unix seconds
	ModuleHash common.Hash    `json:"module_hash"`
	ParamsHash common.Hash    `json:"params_hash"` // keccak256 of the ABI-encoded params
	Funder     common.Address `json:"funder"`
	SaleToken  common.Address `json:"sale_token"`
	Kind       SaleKind       `json:"kind"`
}

// ═══════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════

// PresaleFactoryConfig contains the construction parameters of a factory
type PresaleFactoryConfig struct {
	Admin         common.Address `validate:"required"` // may deploy and manage deployers
	Address       common.Address `validate:"required"` // sale addresses derive from it
	FeeCollector  common.Address `validate:"required"` // default sale treasury
	Tokens        TokenResolver  `validate:"required"`
	Ledger        IWeightReader  // handed to allocation sales
	MaxFeeBps     uint64         `validate:"lte=10000"` // 0 = DefaultMaxFeeBps
	MaxModuleSize int            `validate:"gte=0"`     // 0 = DefaultMaxModuleSize
}

// Validate checks if PresaleFactoryConfig is valid
func (c *PresaleFactoryConfig) Validate() error {
	return ValidateStruct(c)
}
