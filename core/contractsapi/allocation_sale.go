package contractsapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
)

// capPolicy bounds the cumulative sale units a buyer may be entitled to.
// capped is false when the policy imposes no bound.
type capPolicy interface {
	capOf(buyer common.Address, tier int) (limit *uint256.Int, capped bool)
}

// newCapPolicy picks the policy for a sale: flat tier allocations win over
// ledger weights, and sales with neither are uncapped.
func newCapPolicy(params types.SaleParams, ledger types.IWeightReader) capPolicy {
	switch {
	case len(params.TierAllocations) > 0:
		return tierAllocationCap{allocations: params.TierAllocations}
	case params.Kind == types.SaleKindAllocation && ledger != nil:
		return weightShareCap{ledger: ledger, hardCap: params.HardCap}
	default:
		return uncapped{}
	}
}

type uncapped struct{}

func (uncapped) capOf(common.Address, int) (*uint256.Int, bool) {
	return nil, false
}

// tierAllocationCap gives every buyer proven into tier i the flat allocation i
type tierAllocationCap struct {
	allocations []*uint256.Int
}

func (c tierAllocationCap) capOf(_ common.Address, tier int) (*uint256.Int, bool) {
	if tier < 0 || tier >= len(c.allocations) {
		return new(uint256.Int), true
	}
	return util.Copy(c.allocations[tier]), true
}

// weightShareCap gives a buyer hardCap × w / W using current ledger weights.
// A ledger without weight allows nobody to buy.
type weightShareCap struct {
	ledger  types.IWeightReader
	hardCap *uint256.Int
}

func (c weightShareCap) capOf(buyer common.Address, _ int) (*uint256.Int, bool) {
	total := c.ledger.TotalWeight()
	if total.IsZero() {
		return new(uint256.Int), true
	}
	share, overflow := util.MulDiv(c.hardCap, c.ledger.UserWeight(buyer), total)
	if overflow {
		return util.Copy(c.hardCap), true
	}
	return share, true
}

// AllocationSale is a Presale whose per-buyer cap comes from the weight ledger
// or, when configured, from flat per-tier allocations.
type AllocationSale struct {
	*Presale
}

// Compile-time check that AllocationSale implements IAllocationSale
var _ types.IAllocationSale = (*AllocationSale)(nil)

// NewAllocationSale creates an allocation-capped sale. The config must carry a
// ledger unless tier allocations are configured.
func NewAllocationSale(cfg types.SaleConfig, opts ...Option) (*AllocationSale, error) {
	if cfg.Params.Kind != types.SaleKindAllocation {
		return nil, errors.Errorf("allocation sale requires kind %s, got %s", types.SaleKindAllocation, cfg.Params.Kind)
	}
	presale, err := NewPresale(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &AllocationSale{Presale: presale}, nil
}

// NewPrivateSale creates a whitelist-only sale. Every buyer must prove membership
// in one of the eligibility roots; tier allocations, when set, cap each tier.
func NewPrivateSale(cfg types.SaleConfig, opts ...Option) (*Presale, error) {
	if cfg.Params.Kind != types.SaleKindPrivate {
		return nil, errors.Errorf("private sale requires kind %s, got %s", types.SaleKindPrivate, cfg.Params.Kind)
	}
	if len(cfg.Params.EligibilityRoots) == 0 {
		return nil, errors.New("private sale requires at least one eligibility root")
	}
	return NewPresale(cfg, opts...)
}
