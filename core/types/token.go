package types

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// IERC20 is the fungible-token collaborator every ledger and sale moves value through.
// The engine never implements transfer logic itself; it only calls these methods.
type IERC20 interface {
	// Address of the token contract
	Address() common.Address
	// Symbol is the display ticker
	Symbol() string
	// Decimals is the base-unit exponent used when formatting amounts
	Decimals() uint8
	// BalanceOf returns the balance held by account
	BalanceOf(account common.Address) *uint256.Int
	// Allowance returns how much spender may still pull from owner
	Allowance(owner, spender common.Address) *uint256.Int
	// Approve sets the allowance of spender over owner's tokens
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
	// Transfer moves amount out of the from account, normally the caller.
	// A sale also uses it to move a payout back when a later payout of the same call fails.
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount from owner to recipient, spending spender's allowance
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
}

// TokenResolver resolves token addresses named in sale parameters
type TokenResolver interface {
	Token(address common.Address) (IERC20, bool)
}
