// Package token provides an in-memory ERC-20 implementation of types.IERC20.
// It backs the simulator, the examples and the package tests; production
// deployments plug in a chain-backed implementation instead.
package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)

// TransferHook runs before a transfer is applied. Returning an error rejects the transfer.
// Tests use it to simulate failing tokens and tokens that call back into the engine.
type TransferHook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

// ERC20 is a mutex-guarded in-memory fungible token
type ERC20 struct {
	address  common.Address
	symbol   string
	decimals uint8

	mu          sync.Mutex
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	hook        TransferHook
}

// Compile-time check that ERC20 implements IERC20
var _ types.IERC20 = (*ERC20)(nil)

// New creates an empty token
func New(address common.Address, symbol string, decimals uint8) *ERC20 {
	return &ERC20{
		address:     address,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// SetTransferHook installs or clears (nil) the pre-transfer hook
func (t *ERC20) SetTransferHook(hook TransferHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

// Mint credits amount to account
func (t *ERC20) Mint(account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "mint")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	supply, err := util.Add(t.totalSupply, amount)
	if err != nil {
		return errors.Wrap(err, "mint")
	}
	t.totalSupply = supply
	t.balances[account] = new(uint256.Int).Add(t.balanceOf(account), amount)
	return nil
}

func (t *ERC20) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return util.Copy(t.totalSupply)
}

func (t *ERC20) BalanceOf(account common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return util.Copy(t.balanceOf(account))
}

func (t *ERC20) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return util.Copy(t.allowance(owner, spender))
}

func (t *ERC20) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}

func (t *ERC20) Approve(_ context.Context, owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "approve")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[owner][spender] = util.Copy(amount)
	return nil
}

func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := t.runHook(ctx, from, to, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	if err := t.runHook(ctx, from, to, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(from, spender)
	if allowed.Lt(amount) {
		return errors.Wrapf(ErrInsufficientAllowance, "%s %s allowed to %s, need %s",
			t.symbol, allowed.Dec(), spender.Hex(), amount.Dec())
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if t.allowances[from] == nil {
		t.allowances[from] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[from][spender] = new(uint256.Int).Sub(allowed, amount)
	return nil
}

// runHook calls the hook without holding mu so it may call back into the token
func (t *ERC20) runHook(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	hook := t.hook
	t.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx, from, to, amount)
}

// move transfers balance. Caller holds mu.
func (t *ERC20) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "transfer to")
	}
	balance := t.balanceOf(from)
	if balance.Lt(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "%s balance of %s is %s, need %s",
			t.symbol, from.Hex(), balance.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceOf(to), amount)
	return nil
}

// Registry resolves tokens by address for the factory
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]types.IERC20
}

// Compile-time check that Registry implements TokenResolver
var _ types.TokenResolver = (*Registry)(nil)

func NewRegistry(tokens ...types.IERC20) *Registry {
	r := &Registry{tokens: make(map[common.Address]types.IERC20)}
	for _, tok := range tokens {
		r.Register(tok)
	}
	return r
}

// Register adds or replaces a token
func (r *Registry) Register(tok types.IERC20) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tok.Address()] = tok
}

func (r *Registry) Token(address common.Address) (types.IERC20, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[address]
	return tok, ok
}
