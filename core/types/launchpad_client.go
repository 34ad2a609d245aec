package types

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Client is the entry point that wires a weight ledger, a factory and the token set together
type Client interface {
	// Allocator returns the weight ledger
	Allocator() IAllocator
	// Factory returns the sale factory
	Factory() IPresaleFactory
	// Token resolves a registered token
	Token(address common.Address) (IERC20, bool)
	// DeploySale deploys a sale with the built-in template of params.Kind and loads it
	DeploySale(ctx context.Context, caller common.Address, params SaleParams) (ISale, error)
	// LoadSale loads an already deployed sale, permitting its API usage
	LoadSale(address common.Address) (ISale, error)
	// LoadAllocationSale loads an already deployed allocation sale
	LoadAllocationSale(address common.Address) (IAllocationSale, error)
}
