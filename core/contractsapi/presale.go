package contractsapi

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

const componentSale = "sale"

var (
	priceScale  = uint256.NewInt(types.PriceScale)
	basisPoints = uint256.NewInt(types.BasisPoints)
)

// Presale is the sale state machine: funded once, purchased into during
// [start, end), then withdrawn from and claimed against once ended.
type Presale struct {
	guard        callGuard
	opts         options
	address      common.Address
	params       types.SaleParams
	saleToken    types.IERC20
	paymentToken types.IERC20
	ledger       types.IWeightReader
	caps         capPolicy

	mu           sync.RWMutex
	funded       bool
	vestingEnd   int64
	totalRaised  *uint256.Int
	totalSold    *uint256.Int
	totalClaimed *uint256.Int
	contributed  map[common.Address]*uint256.Int
	entitlement  map[common.Address]*uint256.Int
	claimed      map[common.Address]*uint256.Int
	buyerTier    map[common.Address]int

	// withdrawal bookkeeping; see Withdraw
	settledRaised  *uint256.Int
	proceedsOwed   *uint256.Int
	feeOwed        *uint256.Int
	unsoldOwed     *uint256.Int
	unsoldSettled  bool
	proceedsPaid   *uint256.Int
	feePaid        *uint256.Int
	lastWithdrawAt int64
}

// Compile-time check that Presale implements ISale
var _ types.ISale = (*Presale)(nil)

// NewPresale creates a sale instance. Templates call it after the factory validated the params.
func NewPresale(cfg types.SaleConfig, opts ...Option) (*Presale, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sale config")
	}

	p := &Presale{
		guard:         callGuard{instance: cfg.Address},
		opts:          newOptions(componentSale, opts),
		address:       cfg.Address,
		params:        cloneParams(cfg.Params),
		saleToken:     cfg.SaleToken,
		paymentToken:  cfg.PaymentToken,
		ledger:        cfg.Ledger,
		totalRaised:   new(uint256.Int),
		totalSold:     new(uint256.Int),
		totalClaimed:  new(uint256.Int),
		contributed:   make(map[common.Address]*uint256.Int),
		entitlement:   make(map[common.Address]*uint256.Int),
		claimed:       make(map[common.Address]*uint256.Int),
		buyerTier:     make(map[common.Address]int),
		settledRaised: new(uint256.Int),
		proceedsOwed:  new(uint256.Int),
		feeOwed:       new(uint256.Int),
		unsoldOwed:    new(uint256.Int),
		proceedsPaid:  new(uint256.Int),
		feePaid:       new(uint256.Int),
	}
	p.caps = newCapPolicy(p.params, cfg.Ledger)
	p.opts.logger = p.opts.logger.With(zap.String("sale", cfg.Address.Hex()), zap.Stringer("kind", cfg.Params.Kind))
	return p, nil
}

// ═══════════════════════════════════════════════════════════════
// STATE-CHANGING OPERATIONS
// ═══════════════════════════════════════════════════════════════

// Fund pulls the hard cap of sale tokens from the funder. It can succeed only once.
func (p *Presale) Fund(ctx context.Context, input types.FundInput) (err error) {
	defer func() { p.opts.observe(componentSale, "fund", err) }()

	if err := input.Validate(); err != nil {
		return invalidParams(err)
	}

	ctx, release, err := p.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if input.Caller != p.params.Funder {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the funder", input.Caller.Hex())
	}
	p.mu.RLock()
	funded := p.funded
	p.mu.RUnlock()
	if funded {
		return errors.WithStack(types.ErrAlreadyFunded)
	}
	if now := p.opts.now(); now >= p.params.EndTime() {
		return errors.Wrapf(types.ErrSaleEnded, "sale ended at %d, now %d", p.params.EndTime(), now)
	}
	if !input.Amount.Eq(p.params.HardCap) {
		return errors.Wrapf(types.ErrInsufficientFunding, "funding must equal the hard cap %s, got %s",
			p.params.HardCap.Dec(), input.Amount.Dec())
	}

	if err := p.saleToken.TransferFrom(ctx, p.address, input.Caller, p.address, input.Amount); err != nil {
		return transferFailed("pull sale tokens", err)
	}

	p.mu.Lock()
	p.funded = true
	p.mu.Unlock()

	p.opts.logger.Info("funded", zap.String("funder", input.Caller.Hex()), zap.String("amount", input.Amount.Dec()))
	p.opts.emit(ctx, p.address, types.FundEvent{Funder: input.Caller, Amount: util.Copy(input.Amount)})
	return nil
}

// Purchase buys sale tokens at the fixed unit price. Only the payment units that
// the purchased amount actually costs are pulled; the truncated remainder stays
// with the buyer and is reported in the receipt.
func (p *Presale) Purchase(ctx context.Context, input types.PurchaseInput) (receipt *types.PurchaseReceipt, err error) {
	defer func() { p.opts.observe(componentSale, "purchase", err) }()

	ctx, release, err := p.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	p.mu.RLock()
	funded := p.funded
	totalSold := util.Copy(p.totalSold)
	totalRaised := util.Copy(p.totalRaised)
	contributed := util.Copy(p.contributed[input.Buyer])
	entitled := util.Copy(p.entitlement[input.Buyer])
	knownTier, hasTier := p.buyerTier[input.Buyer]
	p.mu.RUnlock()

	if !funded {
		return nil, errors.WithStack(types.ErrNotFunded)
	}
	now := p.opts.now()
	if now < p.params.StartTime {
		return nil, errors.Wrapf(types.ErrSaleNotStarted, "sale starts at %d, now %d", p.params.StartTime, now)
	}
	if now >= p.params.EndTime() {
		return nil, errors.Wrapf(types.ErrSaleEnded, "sale ended at %d, now %d", p.params.EndTime(), now)
	}
	if err := input.Validate(); err != nil {
		return nil, invalidParams(err)
	}

	saleOut, overflow := util.MulDiv(input.PaymentAmount, priceScale, p.params.UnitPrice)
	if overflow {
		return nil, invalidParams(fmt.Errorf("payment %s overflows at unit price %s", input.PaymentAmount.Dec(), p.params.UnitPrice.Dec()))
	}
	if saleOut.IsZero() {
		return nil, invalidParams(fmt.Errorf("payment %s buys less than one sale unit at unit price %s",
			input.PaymentAmount.Dec(), p.params.UnitPrice.Dec()))
	}
	cost, overflow := util.MulDivUp(saleOut, p.params.UnitPrice, priceScale)
	if overflow {
		return nil, invalidParams(fmt.Errorf("cost of %s sale units overflows", saleOut.Dec()))
	}

	newSold, err := util.Add(totalSold, saleOut)
	if err != nil || newSold.Gt(p.params.HardCap) {
		return nil, errors.Wrapf(types.ErrHardCapExceeded, "%s sold + %s requested exceeds hard cap %s",
			totalSold.Dec(), saleOut.Dec(), p.params.HardCap.Dec())
	}

	tier, err := p.checkEligibility(input.Buyer, input.Proof, knownTier, hasTier)
	if err != nil {
		return nil, err
	}

	newContributed, errContrib := util.Add(contributed, cost)
	newEntitled, errEntitled := util.Add(entitled, saleOut)
	newRaised, errRaised := util.Add(totalRaised, cost)
	if err := firstErr(errContrib, errEntitled, errRaised); err != nil {
		return nil, invalidParams(err)
	}

	if minimum := p.params.MinContribution; !util.IsZero(minimum) && cost.Lt(minimum) {
		return nil, errors.Wrapf(types.ErrAllocationExceeded, "purchase of %s is below the minimum contribution %s",
			cost.Dec(), minimum.Dec())
	}
	if maximum := p.params.MaxContribution; !util.IsZero(maximum) && newContributed.Gt(maximum) {
		return nil, errors.Wrapf(types.ErrAllocationExceeded, "contribution %s would exceed the maximum %s",
			newContributed.Dec(), maximum.Dec())
	}
	if limit, capped := p.caps.capOf(input.Buyer, tier); capped && newEntitled.Gt(limit) {
		return nil, errors.Wrapf(types.ErrAllocationExceeded, "entitlement %s would exceed allocation %s",
			newEntitled.Dec(), limit.Dec())
	}

	if err := p.paymentToken.TransferFrom(ctx, p.address, input.Buyer, p.address, cost); err != nil {
		p.opts.logger.Debug("payment pull rejected", zap.String("buyer", input.Buyer.Hex()), zap.Error(err))
		return nil, transferFailed("pull payment", err)
	}

	p.mu.Lock()
	p.totalSold = newSold
	p.totalRaised = newRaised
	p.contributed[input.Buyer] = newContributed
	p.entitlement[input.Buyer] = newEntitled
	if tier >= 0 {
		p.buyerTier[input.Buyer] = tier
	}
	p.mu.Unlock()

	p.opts.logger.Info("purchased",
		zap.String("buyer", input.Buyer.Hex()),
		zap.String("paid", cost.Dec()),
		zap.String("sale_amount", saleOut.Dec()),
		zap.String("total_sold", newSold.Dec()),
	)
	p.opts.emit(ctx, p.address, types.PurchaseEvent{
		Buyer:         input.Buyer,
		PaymentAmount: util.Copy(cost),
		SaleAmount:    util.Copy(saleOut),
	})

	return &types.PurchaseReceipt{
		Buyer:       input.Buyer,
		Paid:        cost,
		Remainder:   new(uint256.Int).Sub(input.PaymentAmount, cost),
		SaleAmount:  saleOut,
		Contributed: util.Copy(newContributed),
	}, nil
}

// checkEligibility verifies the merkle proof when the sale has eligibility roots.
// It returns the proven tier index, or -1 for open sales.
// A buyer stays in the tier of their first purchase.
func (p *Presale) checkEligibility(buyer common.Address, proof *types.EligibilityProof, knownTier int, hasTier bool) (int, error) {
	roots := p.params.EligibilityRoots
	if len(roots) == 0 {
		return -1, nil
	}
	if proof == nil {
		return 0, errors.Wrapf(types.ErrNotEligible, "%s presented no eligibility proof", buyer.Hex())
	}
	if proof.TierIndex >= len(roots) {
		return 0, errors.Wrapf(types.ErrNotEligible, "tier %d does not exist (%d roots)", proof.TierIndex, len(roots))
	}
	if hasTier && proof.TierIndex != knownTier {
		return 0, errors.Wrapf(types.ErrNotEligible, "%s already purchased in tier %d", buyer.Hex(), knownTier)
	}
	if !util.VerifyMerkleProof(roots[proof.TierIndex], util.EligibilityLeaf(buyer), proof.Siblings) {
		return 0, errors.Wrapf(types.ErrNotEligible, "proof for %s does not match tier %d root", buyer.Hex(), proof.TierIndex)
	}
	return proof.TierIndex, nil
}

// Withdraw settles raised proceeds once the sale ended. The fee share of the
// unsettled proceeds goes to the treasury, the rest and any unsold inventory to
// the funder. Repeat calls only move what was not moved before, so a call after
// everything was settled is a successful no-op with an all-zero receipt.
//
// A rejected leg fails the call. Legs already paid in that call are moved back
// to the sale and the settlement is restored, so a failed call moves nothing.
// Should a token refuse to move a paid leg back, that leg stays paid, the
// remaining legs stay owed and the error says so.
func (p *Presale) Withdraw(ctx context.Context, input types.WithdrawInput) (receipt *types.WithdrawReceipt, err error) {
	defer func() { p.opts.observe(componentSale, "withdraw", err) }()

	if input.Caller == (common.Address{}) {
		return nil, invalidParams(fmt.Errorf("caller is required"))
	}

	ctx, release, err := p.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if input.Caller != p.params.Funder && input.Caller != p.params.Treasury {
		return nil, errors.Wrapf(types.ErrUnauthorized, "%s is neither funder nor treasury", input.Caller.Hex())
	}
	now := p.opts.now()
	if now < p.params.EndTime() {
		return nil, errors.Wrapf(types.ErrClaimNotStarted, "withdrawals open at %d, now %d", p.params.EndTime(), now)
	}

	// book everything raised since the last settlement
	p.mu.Lock()
	before := p.settlementLocked()
	pending := new(uint256.Int).Sub(p.totalRaised, p.settledRaised)
	fee, _ := util.MulDiv(pending, uint256.NewInt(p.params.FeeBps), basisPoints)
	p.feeOwed = new(uint256.Int).Add(p.feeOwed, fee)
	p.proceedsOwed = new(uint256.Int).Add(p.proceedsOwed, new(uint256.Int).Sub(pending, fee))
	p.settledRaised = util.Copy(p.totalRaised)
	if p.funded && !p.unsoldSettled {
		p.unsoldOwed = new(uint256.Int).Sub(p.params.HardCap, p.totalSold)
		p.unsoldSettled = true
	}
	p.lastWithdrawAt = now
	p.mu.Unlock()

	receipt = &types.WithdrawReceipt{Proceeds: new(uint256.Int), Fee: new(uint256.Int), Unsold: new(uint256.Int)}

	legs := []*withdrawLeg{
		{"proceeds", p.paymentToken, p.params.Funder, &p.proceedsOwed, &p.proceedsPaid, receipt.Proceeds},
		{"fee", p.paymentToken, p.params.Treasury, &p.feeOwed, &p.feePaid, receipt.Fee},
		{"unsold", p.saleToken, p.params.Funder, &p.unsoldOwed, nil, receipt.Unsold},
	}
	var paid []*withdrawLeg
	for _, leg := range legs {
		p.mu.Lock()
		amount := *leg.owed
		*leg.owed = new(uint256.Int)
		p.mu.Unlock()
		if amount.IsZero() {
			continue
		}

		if err := leg.token.Transfer(ctx, p.address, leg.to, amount); err != nil {
			p.mu.Lock()
			*leg.owed = amount
			p.mu.Unlock()
			failed := transferFailed("withdraw "+leg.name, err)

			if undoErr := p.undoLegs(ctx, paid); undoErr != nil {
				p.logWithdraw(ctx, receipt)
				return nil, errors.Wrapf(failed, "paid legs kept: %v", undoErr)
			}
			p.mu.Lock()
			p.restoreSettlementLocked(before)
			p.mu.Unlock()
			p.opts.logger.Debug("withdraw rolled back", zap.String("leg", leg.name), zap.Error(err))
			return nil, failed
		}
		leg.receipt.Set(amount)
		if leg.total != nil {
			p.mu.Lock()
			*leg.total = new(uint256.Int).Add(*leg.total, amount)
			p.mu.Unlock()
		}
		paid = append(paid, leg)
	}

	p.logWithdraw(ctx, receipt)
	return receipt, nil
}

// withdrawLeg is one payout of a Withdraw call
type withdrawLeg struct {
	name    string
	token   types.IERC20
	to      common.Address
	owed    **uint256.Int
	total   **uint256.Int // running total of the leg, nil when not tracked
	receipt *uint256.Int
}

// settlement is the withdrawal bookkeeping a failed Withdraw restores
type settlement struct {
	settledRaised  *uint256.Int
	proceedsOwed   *uint256.Int
	feeOwed        *uint256.Int
	unsoldOwed     *uint256.Int
	unsoldSettled  bool
	proceedsPaid   *uint256.Int
	feePaid        *uint256.Int
	lastWithdrawAt int64
}

// settlementLocked copies the withdrawal bookkeeping. Caller holds mu.
func (p *Presale) settlementLocked() settlement {
	return settlement{
		settledRaised:  util.Copy(p.settledRaised),
		proceedsOwed:   util.Copy(p.proceedsOwed),
		feeOwed:        util.Copy(p.feeOwed),
		unsoldOwed:     util.Copy(p.unsoldOwed),
		unsoldSettled:  p.unsoldSettled,
		proceedsPaid:   util.Copy(p.proceedsPaid),
		feePaid:        util.Copy(p.feePaid),
		lastWithdrawAt: p.lastWithdrawAt,
	}
}

// restoreSettlementLocked puts back a copy taken by settlementLocked. Caller holds mu.
func (p *Presale) restoreSettlementLocked(s settlement) {
	p.settledRaised = s.settledRaised
	p.proceedsOwed = s.proceedsOwed
	p.feeOwed = s.feeOwed
	p.unsoldOwed = s.unsoldOwed
	p.unsoldSettled = s.unsoldSettled
	p.proceedsPaid = s.proceedsPaid
	p.feePaid = s.feePaid
	p.lastWithdrawAt = s.lastWithdrawAt
}

// undoLegs moves paid legs back to the sale, newest first. A leg that moves
// back is owed again; one that does not stays paid and is reported.
func (p *Presale) undoLegs(ctx context.Context, paid []*withdrawLeg) error {
	var failed []string
	for i := len(paid) - 1; i >= 0; i-- {
		leg := paid[i]
		amount := util.Copy(leg.receipt)
		if err := leg.token.Transfer(ctx, leg.to, p.address, amount); err != nil {
			failed = append(failed, fmt.Sprintf("%s %s: %v", leg.name, amount.Dec(), err))
			continue
		}
		p.mu.Lock()
		*leg.owed = new(uint256.Int).Add(*leg.owed, amount)
		if leg.total != nil {
			*leg.total = new(uint256.Int).Sub(*leg.total, amount)
		}
		p.mu.Unlock()
		leg.receipt.Clear()
	}
	if len(failed) > 0 {
		return errors.Errorf("could not move back %s", strings.Join(failed, "; "))
	}
	return nil
}

// logWithdraw records whatever value moved, including the legs paid before a failure
func (p *Presale) logWithdraw(ctx context.Context, receipt *types.WithdrawReceipt) {
	if receipt.Proceeds.IsZero() && receipt.Fee.IsZero() && receipt.Unsold.IsZero() {
		return
	}
	p.opts.logger.Info("withdrawn",
		zap.String("proceeds", receipt.Proceeds.Dec()),
		zap.String("fee", receipt.Fee.Dec()),
		zap.String("unsold", receipt.Unsold.Dec()),
	)
	p.opts.emit(ctx, p.address, types.WithdrawEvent{
		Funder:   p.params.Funder,
		Proceeds: util.Copy(receipt.Proceeds),
		Fee:      util.Copy(receipt.Fee),
		Unsold:   util.Copy(receipt.Unsold),
	})
}

// SetLinearVestingEndTime sets when entitlements become fully claimable.
// Before the sale ends any end after the sale end is accepted. Once vesting is
// under way the end can only move earlier, and it is frozen after it passed.
// A sale that ended without vesting has already released everything and
// cannot start vesting afterwards.
func (p *Presale) SetLinearVestingEndTime(ctx context.Context, input types.SetVestingInput) (err error) {
	defer func() { p.opts.observe(componentSale, "set_vesting", err) }()

	if err := input.Validate(); err != nil {
		return invalidParams(err)
	}

	ctx, release, err := p.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if input.Caller != p.params.Admin {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the sale admin", input.Caller.Hex())
	}
	end := p.params.EndTime()
	if input.VestingEnd <= end {
		return errors.Wrapf(types.ErrInvalidVestingWindow, "vesting end %d must be after sale end %d", input.VestingEnd, end)
	}

	now := p.opts.now()
	p.mu.Lock()
	current := p.vestingEnd
	switch {
	case current == 0 && (now > end || !p.totalClaimed.IsZero()):
		p.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidVestingWindow, "sale ended at %d without vesting, entitlements are fully released", end)
	case current != 0 && now >= current:
		p.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidVestingWindow, "vesting already completed at %d", current)
	case current != 0 && now > end && input.VestingEnd > current:
		p.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidVestingWindow, "vesting under way, end can only move earlier than %d", current)
	}
	p.vestingEnd = input.VestingEnd
	p.mu.Unlock()

	p.opts.logger.Info("vesting end set", zap.Int64("vesting_end", input.VestingEnd), zap.Int64("previous", current))
	p.opts.emit(ctx, p.address, types.SetLinearVestingEndTimeEvent{VestingEnd: input.VestingEnd})
	return nil
}

// Claim releases the vested and unclaimed entitlement of the buyer.
// Nothing to claim is not an error: it returns zero and emits nothing.
func (p *Presale) Claim(ctx context.Context, input types.ClaimInput) (amount *uint256.Int, err error) {
	defer func() { p.opts.observe(componentSale, "claim", err) }()

	if input.Buyer == (common.Address{}) {
		return nil, invalidParams(fmt.Errorf("buyer is required"))
	}

	ctx, release, err := p.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	now := p.opts.now()
	if now < p.params.EndTime() {
		return nil, errors.Wrapf(types.ErrClaimNotStarted, "claims open at %d, now %d", p.params.EndTime(), now)
	}

	p.mu.Lock()
	claimable := p.claimableAt(input.Buyer, now)
	if claimable.IsZero() {
		p.mu.Unlock()
		return new(uint256.Int), nil
	}
	p.claimed[input.Buyer] = new(uint256.Int).Add(p.claimedOf(input.Buyer), claimable)
	p.totalClaimed = new(uint256.Int).Add(p.totalClaimed, claimable)
	p.mu.Unlock()

	if err := p.saleToken.Transfer(ctx, p.address, input.Buyer, claimable); err != nil {
		p.mu.Lock()
		p.claimed[input.Buyer] = new(uint256.Int).Sub(p.claimed[input.Buyer], claimable)
		p.totalClaimed = new(uint256.Int).Sub(p.totalClaimed, claimable)
		p.mu.Unlock()
		return nil, transferFailed("release sale tokens", err)
	}

	p.opts.logger.Info("claimed", zap.String("buyer", input.Buyer.Hex()), zap.String("amount", claimable.Dec()))
	p.opts.emit(ctx, p.address, types.ClaimEvent{Buyer: input.Buyer, Amount: util.Copy(claimable)})
	return claimable, nil
}

// claimableAt is vested(buyer, now) minus what the buyer already claimed. Caller holds mu.
func (p *Presale) claimableAt(buyer common.Address, now int64) *uint256.Int {
	entitled, ok := p.entitlement[buyer]
	if !ok {
		return new(uint256.Int)
	}
	vested := vestedAmount(entitled, p.params.EndTime(), p.vestingEnd, now)
	claimed := p.claimedOf(buyer)
	if !vested.Gt(claimed) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, claimed)
}

func (p *Presale) claimedOf(buyer common.Address) *uint256.Int {
	if c, ok := p.claimed[buyer]; ok {
		return c
	}
	return new(uint256.Int)
}

// vestedAmount is entitlement × clamp((now − end)/(vestingEnd − end), 0, 1).
// A zero vestingEnd means everything vests at end.
func vestedAmount(entitlement *uint256.Int, end, vestingEnd, now int64) *uint256.Int {
	switch {
	case now < end:
		return new(uint256.Int)
	case vestingEnd == 0 || now >= vestingEnd:
		return util.Copy(entitlement)
	}
	vested, _ := util.MulDiv(entitlement, uint256.NewInt(uint64(now-end)), uint256.NewInt(uint64(vestingEnd-end)))
	return vested
}

// ═══════════════════════════════════════════════════════════════
// READ OPERATIONS
// ═══════════════════════════════════════════════════════════════

// Address returns the sale's custody address
func (p *Presale) Address() common.Address {
	return p.address
}

// Info returns the sale configuration together with its funding flag and vesting end
func (p *Presale) Info() types.SaleInfo {
	params := cloneParams(p.params)

	p.mu.RLock()
	defer p.mu.RUnlock()

	info := types.SaleInfo{
		Address:          p.address,
		Kind:             params.Kind,
		URI:              params.URI,
		Funder:           params.Funder,
		Admin:            params.Admin,
		Treasury:         params.Treasury,
		SaleToken:        params.SaleToken,
		PaymentToken:     params.PaymentToken,
		UnitPrice:        params.UnitPrice,
		HardCap:          params.HardCap,
		StartTime:        params.StartTime,
		EndTime:          params.EndTime(),
		MinContribution:  util.Copy(params.MinContribution),
		MaxContribution:  util.Copy(params.MaxContribution),
		EligibilityRoots: params.EligibilityRoots,
		TierAllocations:  params.TierAllocations,
		FeeBps:           params.FeeBps,
		VestingEnd:       p.vestingEnd,
		Funded:           p.funded,
	}
	if p.ledger != nil {
		ledger := p.ledger.Address()
		info.Ledger = &ledger
	}
	return info
}

// Status derives the sale phase from the funding flag and the clock
func (p *Presale) Status() types.SaleStatus {
	p.mu.RLock()
	funded := p.funded
	p.mu.RUnlock()

	now := p.opts.now()
	switch {
	case !funded:
		return types.SaleStatusUnfunded
	case now < p.params.StartTime:
		return types.SaleStatusBeforeStart
	case now < p.params.EndTime():
		return types.SaleStatusActive
	default:
		return types.SaleStatusEnded
	}
}

// WithdrawTime returns the earliest time Withdraw and Claim succeed
func (p *Presale) WithdrawTime() int64 {
	return p.params.EndTime()
}

// LastWithdrawAt returns when Withdraw last ran, or 0
func (p *Presale) LastWithdrawAt() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastWithdrawAt
}

// TotalRaised returns the payment units collected
func (p *Presale) TotalRaised() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.totalRaised)
}

// TotalSold returns the sale units committed to buyers
func (p *Presale) TotalSold() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.totalSold)
}

// TotalClaimed returns the sale units released to buyers
func (p *Presale) TotalClaimed() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.totalClaimed)
}

// ProceedsPaid returns the payment units paid to the funder and the treasury so far
func (p *Presale) ProceedsPaid() (proceeds, fee *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.proceedsPaid), util.Copy(p.feePaid)
}

func (p *Presale) Contributed(buyer common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.contributed[buyer])
}

func (p *Presale) Entitlement(buyer common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.entitlement[buyer])
}

func (p *Presale) Claimed(buyer common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return util.Copy(p.claimed[buyer])
}

// Claimable returns what Claim would release for buyer right now
func (p *Presale) Claimable(buyer common.Address) *uint256.Int {
	now := p.opts.now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.claimableAt(buyer, now)
}

// AllocationOf returns the sale-unit cap that applies to buyer, or the hard cap for uncapped sales.
// For tiered sales the tier is the one of the buyer's first purchase; before that it is 0.
func (p *Presale) AllocationOf(buyer common.Address) *uint256.Int {
	p.mu.RLock()
	tier, ok := p.buyerTier[buyer]
	p.mu.RUnlock()
	if !ok {
		tier = 0
	}
	if limit, capped := p.caps.capOf(buyer, tier); capped {
		return limit
	}
	return util.Copy(p.params.HardCap)
}

// cloneParams deep-copies the amount fields so callers cannot mutate sale state
func cloneParams(params types.SaleParams) types.SaleParams {
	params.UnitPrice = util.Copy(params.UnitPrice)
	params.HardCap = util.Copy(params.HardCap)
	if params.MinContribution != nil {
		params.MinContribution = util.Copy(params.MinContribution)
	}
	if params.MaxContribution != nil {
		params.MaxContribution = util.Copy(params.MaxContribution)
	}
	params.EligibilityRoots = append([]common.Hash(nil), params.EligibilityRoots...)
	allocations := make([]*uint256.Int, len(params.TierAllocations))
	for i, alloc := range params.TierAllocations {
		allocations[i] = util.Copy(alloc)
	}
	params.TierAllocations = allocations
	return params
}
