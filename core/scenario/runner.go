package scenario

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/journal"
	"github.com/trufnetwork/launchpad-go/core/launchpad"
	"github.com/trufnetwork/launchpad-go/core/logging"
	"github.com/trufnetwork/launchpad-go/core/metrics"
	"github.com/trufnetwork/launchpad-go/core/token"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

// Well-known addresses of a simulated deployment
var (
	FactoryAddress = util.LabelAddress("factory")
	LedgerAddress  = util.LabelAddress("ledger")
)

// TokenAddress returns the simulated address of a token symbol
func TokenAddress(symbol string) common.Address {
	return util.LabelAddress("token:" + symbol)
}

// StepResult is the outcome of one executed step
type StepResult struct {
	Index   int    // 1-based
	Action  string
	Detail  string
	Outcome string // metrics.Outcome label
	Time    int64
}

// SaleHandle is a deployed sale together with the whitelist it was deployed with
type SaleHandle struct {
	Name      string
	Sale      types.ISale
	Whitelist [][]common.Address
	trees     []*util.MerkleTree
}

// Runner executes a scenario against an in-memory launchpad
type Runner struct {
	scenario *Scenario
	clock    *util.ManualClock
	client   *launchpad.Client
	logger   *zap.Logger

	tokens    map[string]*token.ERC20
	symbols   []string
	accounts  []string
	seen      map[string]struct{}
	sales     map[string]*SaleHandle
	saleNames []string
	journal   *journal.Journal
	baseSeq   uint64 // journal sequence before the run
}

// Option configures a Runner
type Option func(*runnerConfig)

type runnerConfig struct {
	clock     *util.ManualClock
	journal   *journal.Journal
	collector *metrics.Collector
	logger    *zap.Logger
}

// WithClock drives the run with clock, reset to the scenario start.
// Share it with a journal to stamp entries with simulated time.
func WithClock(clock *util.ManualClock) Option {
	return func(c *runnerConfig) {
		c.clock = clock
	}
}

// WithJournal journals every event the run emits
func WithJournal(j *journal.Journal) Option {
	return func(c *runnerConfig) {
		c.journal = j
	}
}

// WithMetrics reports the run's calls and events to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *runnerConfig) {
		c.collector = collector
	}
}

// WithLogger sets the logger of the runner and the launchpad components
func WithLogger(logger *zap.Logger) Option {
	return func(c *runnerConfig) {
		c.logger = logger
	}
}

// NewRunner mints the scenario's initial balances and builds the launchpad
func NewRunner(s *Scenario, opts ...Option) (*Runner, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	cfg := runnerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Named("scenario")
	}
	if cfg.clock == nil {
		cfg.clock = util.NewManualClock(time.Unix(s.Start, 0))
	}
	cfg.clock.SetUnix(s.Start)

	r := &Runner{
		scenario: s,
		clock:    cfg.clock,
		logger:   cfg.logger,
		tokens:   make(map[string]*token.ERC20),
		seen:     make(map[string]struct{}),
		sales:    make(map[string]*SaleHandle),
		journal:  cfg.journal,
	}

	if r.journal != nil {
		r.baseSeq = r.journal.Seq()
	}

	registry := token.NewRegistry()
	for _, spec := range s.Tokens {
		if _, dup := r.tokens[spec.Symbol]; dup {
			return nil, errors.Errorf("token %s declared twice", spec.Symbol)
		}
		tok := token.New(TokenAddress(spec.Symbol), spec.Symbol, spec.Decimals)
		r.tokens[spec.Symbol] = tok
		r.symbols = append(r.symbols, spec.Symbol)
		registry.Register(tok)
	}

	stakeToken, err := r.token(s.Launchpad.StakeToken)
	if err != nil {
		return nil, err
	}
	clientCfg := launchpad.Config{
		Admin:          r.account(s.Launchpad.Admin),
		FactoryAddress: FactoryAddress,
		LedgerAddress:  LedgerAddress,
		StakeToken:     stakeToken.Address(),
		Tiers:          types.DefaultStakeTiers(s.Launchpad.TierRateBps),
		MaxFeeBps:      s.Launchpad.MaxFeeBps,
	}
	if s.Launchpad.FeeCollector != "" {
		clientCfg.FeeCollector = r.account(s.Launchpad.FeeCollector)
	}

	clientOpts := []launchpad.Option{
		launchpad.WithClock(r.clock),
		launchpad.WithLogger(cfg.logger),
	}
	if cfg.journal != nil {
		clientOpts = append(clientOpts, launchpad.WithJournal(cfg.journal))
	}
	if cfg.collector != nil {
		clientOpts = append(clientOpts, launchpad.WithMetrics(cfg.collector))
	}
	if r.client, err = launchpad.NewClient(clientCfg, registry, clientOpts...); err != nil {
		return nil, errors.Wrap(err, "build launchpad")
	}

	for _, mint := range s.Mint {
		tok, err := r.token(mint.Token)
		if err != nil {
			return nil, err
		}
		amount, err := util.ParseUnits(mint.Amount, tok.Decimals())
		if err != nil {
			return nil, errors.Wrapf(err, "mint %s to %s", mint.Token, mint.Account)
		}
		if err := tok.Mint(r.account(mint.Account), amount); err != nil {
			return nil, errors.Wrapf(err, "mint %s to %s", mint.Token, mint.Account)
		}
	}
	return r, nil
}

// Run executes every step in order. It stops at the first step whose outcome
// differs from what the step expects and returns the results up to it.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.scenario.Steps))
	for i, step := range r.scenario.Steps {
		detail, err := r.exec(ctx, step)
		result := StepResult{
			Index:   i + 1,
			Action:  step.Action,
			Detail:  detail,
			Outcome: metrics.Outcome(err),
			Time:    r.clock.Now().Unix(),
		}
		results = append(results, result)

		if step.ExpectError != "" {
			if result.Outcome != step.ExpectError {
				return results, errors.Errorf("step %d (%s): expected %s, got %s (%v)", result.Index, step.Action, step.ExpectError, result.Outcome, err)
			}
			r.logger.Debug("step failed as expected", zap.Int("step", result.Index), zap.String("outcome", result.Outcome))
			continue
		}
		if err != nil {
			return results, errors.Wrapf(err, "step %d (%s)", result.Index, step.Action)
		}
	}
	return results, nil
}

func (r *Runner) exec(ctx context.Context, step Step) (string, error) {
	switch step.Action {
	case ActionStake:
		return r.stake(ctx, step)
	case ActionUnstake:
		staker := r.account(step.Account)
		pos, err := r.client.Allocator().Unstake(ctx, types.UnstakeInput{Staker: staker, PositionID: step.Position})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s unstaked position %d (%s)", step.Account, pos.ID, r.format(r.stakeSymbol(), pos.Amount)), nil
	case ActionDeploy:
		return r.deploy(ctx, step)
	case ActionFund:
		return r.fund(ctx, step)
	case ActionPurchase:
		return r.purchase(ctx, step)
	case ActionWarp:
		return r.warp(step)
	case ActionSetVesting:
		handle, err := r.sale(step.Sale)
		if err != nil {
			return "", err
		}
		vestingEnd := handle.Sale.Info().EndTime + step.AfterEnd
		err = handle.Sale.SetLinearVestingEndTime(ctx, types.SetVestingInput{Caller: r.account(step.Account), VestingEnd: vestingEnd})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s vests until %s", step.Sale, time.Unix(vestingEnd, 0).UTC().Format(time.RFC3339)), nil
	case ActionClaim:
		handle, err := r.sale(step.Sale)
		if err != nil {
			return "", err
		}
		amount, err := handle.Sale.Claim(ctx, types.ClaimInput{Buyer: r.account(step.Account)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s claimed %s", step.Account, r.format(r.symbolOf(handle.Sale.Info().SaleToken), amount)), nil
	case ActionWithdraw:
		handle, err := r.sale(step.Sale)
		if err != nil {
			return "", err
		}
		receipt, err := handle.Sale.Withdraw(ctx, types.WithdrawInput{Caller: r.account(step.Account)})
		if err != nil {
			return "", err
		}
		info := handle.Sale.Info()
		payment := r.symbolOf(info.PaymentToken)
		return fmt.Sprintf("proceeds %s, fee %s, unsold %s",
			r.format(payment, receipt.Proceeds), r.format(payment, receipt.Fee),
			r.format(r.symbolOf(info.SaleToken), receipt.Unsold)), nil
	case ActionGrant, ActionRevoke:
		input := types.DeployerRoleInput{Caller: r.account(step.Account), Account: r.account(step.Name)}
		if step.Action == ActionGrant {
			return "granted deployer to " + step.Name, r.client.Factory().GrantDeployer(ctx, input)
		}
		return "revoked deployer from " + step.Name, r.client.Factory().RevokeDeployer(ctx, input)
	case ActionExpect:
		if err := r.expect(step.Expr); err != nil {
			return step.Expr, err
		}
		return step.Expr, nil
	default:
		return "", errors.Errorf("unknown action %s", step.Action)
	}
}

func (r *Runner) stake(ctx context.Context, step Step) (string, error) {
	stakeToken := r.tokens[r.stakeSymbol()]
	amount, err := util.ParseUnits(step.Amount, stakeToken.Decimals())
	if err != nil {
		return "", invalid(err)
	}
	staker := r.account(step.Account)
	if err := stakeToken.Approve(ctx, staker, LedgerAddress, amount); err != nil {
		return "", err
	}
	pos, err := r.client.Allocator().Stake(ctx, types.StakeInput{Staker: staker, Amount: amount, Tier: step.Tier})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s staked %s in tier %d as position %d", step.Account, step.Amount, step.Tier, pos.ID), nil
}

func (r *Runner) deploy(ctx context.Context, step Step) (string, error) {
	if _, dup := r.sales[step.Name]; dup {
		return "", invalid(errors.Errorf("sale %s already deployed", step.Name))
	}
	params, whitelist, trees, err := r.saleParams(step.Params)
	if err != nil {
		return "", err
	}
	sale, err := r.client.DeploySale(ctx, r.account(step.Account), params)
	if err != nil {
		return "", err
	}

	handle := &SaleHandle{Name: step.Name, Sale: sale, Whitelist: whitelist, trees: trees}
	r.sales[step.Name] = handle
	r.saleNames = append(r.saleNames, step.Name)
	return fmt.Sprintf("%s deployed at %s", step.Name, sale.Address().Hex()), nil
}

// saleParams converts a SaleSpec to types.SaleParams and builds the whitelist trees
func (r *Runner) saleParams(spec *SaleSpec) (params types.SaleParams, whitelist [][]common.Address, trees []*util.MerkleTree, err error) {
	kind, err := types.ParseSaleKind(spec.Kind)
	if err != nil {
		return types.SaleParams{}, nil, nil, invalid(err)
	}
	saleToken, err := r.token(spec.SaleToken)
	if err != nil {
		return types.SaleParams{}, nil, nil, err
	}
	paymentToken, err := r.token(spec.PaymentToken)
	if err != nil {
		return types.SaleParams{}, nil, nil, err
	}

	unitPrice, err := UnitPrice(spec.UnitPrice, saleToken.Decimals(), paymentToken.Decimals())
	if err != nil {
		return types.SaleParams{}, nil, nil, invalid(err)
	}
	hardCap, err := util.ParseUnits(spec.HardCap, saleToken.Decimals())
	if err != nil {
		return types.SaleParams{}, nil, nil, invalid(errors.Wrap(err, "hard_cap"))
	}

	params = types.SaleParams{
		URI:          spec.URI,
		Funder:       r.account(spec.Funder),
		UnitPrice:    unitPrice,
		HardCap:      hardCap,
		SaleToken:    saleToken.Address(),
		PaymentToken: paymentToken.Address(),
		StartTime:    r.clock.Now().Unix() + spec.StartIn,
		Duration:     spec.Duration,
		FeeBps:       spec.FeeBps,
		Kind:         kind,
	}
	if spec.Admin != "" {
		params.Admin = r.account(spec.Admin)
	}
	if spec.Treasury != "" {
		params.Treasury = r.account(spec.Treasury)
	}
	if spec.MinContribution != "" {
		if params.MinContribution, err = util.ParseUnits(spec.MinContribution, paymentToken.Decimals()); err != nil {
			return types.SaleParams{}, nil, nil, invalid(errors.Wrap(err, "min_contribution"))
		}
	}
	if spec.MaxContribution != "" {
		if params.MaxContribution, err = util.ParseUnits(spec.MaxContribution, paymentToken.Decimals()); err != nil {
			return types.SaleParams{}, nil, nil, invalid(errors.Wrap(err, "max_contribution"))
		}
	}
	for i, alloc := range spec.TierAllocations {
		amount, err := util.ParseUnits(alloc, saleToken.Decimals())
		if err != nil {
			return types.SaleParams{}, nil, nil, invalid(errors.Wrapf(err, "tier_allocations[%d]", i))
		}
		params.TierAllocations = append(params.TierAllocations, amount)
	}

	whitelist = make([][]common.Address, len(spec.Whitelist))
	for i, tier := range spec.Whitelist {
		for _, label := range tier {
			whitelist[i] = append(whitelist[i], r.account(label))
		}
		tree, err := util.NewMerkleTree(whitelist[i])
		if err != nil {
			return types.SaleParams{}, nil, nil, invalid(errors.Wrapf(err, "whitelist[%d]", i))
		}
		trees = append(trees, tree)
		params.EligibilityRoots = append(params.EligibilityRoots, tree.Root())
	}
	return params, whitelist, trees, nil
}

// UnitPrice converts a human price (payment tokens per sale token) to the
// fixed-point unit price the sale works with.
func UnitPrice(price string, saleDecimals, paymentDecimals uint8) (*uint256.Int, error) {
	scale := 18 + int(paymentDecimals) - int(saleDecimals)
	if scale < 0 || scale > 255 {
		return nil, errors.Errorf("cannot express a price between %d and %d decimal tokens", saleDecimals, paymentDecimals)
	}
	unitPrice, err := util.ParseUnits(price, uint8(scale))
	if err != nil {
		return nil, errors.Wrap(err, "unit_price")
	}
	if unitPrice.IsZero() {
		return nil, errors.New("unit_price must be positive")
	}
	return unitPrice, nil
}

func (r *Runner) fund(ctx context.Context, step Step) (string, error) {
	handle, err := r.sale(step.Sale)
	if err != nil {
		return "", err
	}
	info := handle.Sale.Info()
	saleToken := r.tokens[r.symbolOf(info.SaleToken)]

	amount := info.HardCap
	if step.Amount != "" {
		if amount, err = util.ParseUnits(step.Amount, saleToken.Decimals()); err != nil {
			return "", invalid(err)
		}
	}
	funder := r.account(step.Account)
	if err := saleToken.Approve(ctx, funder, info.Address, amount); err != nil {
		return "", err
	}
	if err := handle.Sale.Fund(ctx, types.FundInput{Caller: funder, Amount: amount}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s funded %s with %s", step.Account, step.Sale, r.format(saleToken.Symbol(), amount)), nil
}

func (r *Runner) purchase(ctx context.Context, step Step) (string, error) {
	handle, err := r.sale(step.Sale)
	if err != nil {
		return "", err
	}
	info := handle.Sale.Info()
	paymentToken := r.tokens[r.symbolOf(info.PaymentToken)]

	payment, err := util.ParseUnits(step.Amount, paymentToken.Decimals())
	if err != nil {
		return "", invalid(err)
	}
	buyer := r.account(step.Account)
	if err := paymentToken.Approve(ctx, buyer, info.Address, payment); err != nil {
		return "", err
	}

	input := types.PurchaseInput{Buyer: buyer, PaymentAmount: payment}
	if len(handle.trees) > 0 {
		input.Proof = handle.proofFor(buyer, int(step.Tier))
	}
	receipt, err := handle.Sale.Purchase(ctx, input)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s paid %s for %s", step.Account,
		r.format(paymentToken.Symbol(), receipt.Paid),
		r.format(r.symbolOf(info.SaleToken), receipt.SaleAmount)), nil
}

// proofFor builds the eligibility proof of buyer in tier. A buyer outside the
// tier gets an empty proof, which the sale rejects.
func (h *SaleHandle) proofFor(buyer common.Address, tier int) *types.EligibilityProof {
	proof := &types.EligibilityProof{TierIndex: tier}
	if tier >= len(h.trees) {
		return proof
	}
	for i, member := range h.Whitelist[tier] {
		if member == buyer {
			proof.Siblings, _ = h.trees[tier].Proof(i)
			break
		}
	}
	return proof
}

func (r *Runner) warp(step Step) (string, error) {
	if step.To == "" {
		r.clock.Advance(time.Duration(step.Seconds) * time.Second)
		return fmt.Sprintf("+%ds", step.Seconds), nil
	}
	handle, err := r.sale(step.Sale)
	if err != nil {
		return "", err
	}
	info := handle.Sale.Info()
	var target int64
	switch step.To {
	case "start":
		target = info.StartTime
	case "end":
		target = info.EndTime
	case "vesting_end":
		if info.VestingEnd == 0 {
			return "", invalid(errors.Errorf("sale %s has no vesting end", step.Sale))
		}
		target = info.VestingEnd
	default:
		return "", invalid(errors.Errorf("unknown warp target %s", step.To))
	}
	r.clock.SetUnix(target + step.Seconds)
	return fmt.Sprintf("%s %s%+ds", step.Sale, step.To, step.Seconds), nil
}

// ═══════════════════════════════════════════════════════════════
// LOOKUPS
// ═══════════════════════════════════════════════════════════════

// account resolves a label and remembers it for the balance summary
func (r *Runner) account(label string) common.Address {
	if _, ok := r.seen[label]; !ok && !common.IsHexAddress(label) {
		r.seen[label] = struct{}{}
		r.accounts = append(r.accounts, label)
	}
	return util.ResolveAddress(label)
}

func (r *Runner) token(symbol string) (*token.ERC20, error) {
	tok, ok := r.tokens[symbol]
	if !ok {
		return nil, invalid(errors.Errorf("unknown token %s", symbol))
	}
	return tok, nil
}

func (r *Runner) sale(name string) (*SaleHandle, error) {
	handle, ok := r.sales[name]
	if !ok {
		return nil, errors.Wrapf(types.ErrSaleNotFound, "no sale named %q", name)
	}
	return handle, nil
}

func (r *Runner) stakeSymbol() string {
	return r.scenario.Launchpad.StakeToken
}

func (r *Runner) symbolOf(address common.Address) string {
	for symbol, tok := range r.tokens {
		if tok.Address() == address {
			return symbol
		}
	}
	return address.Hex()
}

func (r *Runner) format(symbol string, amount *uint256.Int) string {
	tok, ok := r.tokens[symbol]
	if !ok {
		return amount.Dec()
	}
	return util.FormatUnits(amount, tok.Decimals()) + " " + symbol
}

func invalid(err error) error {
	return errors.Wrap(types.ErrInvalidParams, err.Error())
}

// ═══════════════════════════════════════════════════════════════
// RESULTS
// ═══════════════════════════════════════════════════════════════

// Client exposes the launchpad under simulation
func (r *Runner) Client() *launchpad.Client {
	return r.client
}

// Now returns the simulated time
func (r *Runner) Now() time.Time {
	return r.clock.Now()
}

// Accounts returns the account labels in order of first use
func (r *Runner) Accounts() []string {
	return append([]string(nil), r.accounts...)
}

// Symbols returns the token symbols in declaration order
func (r *Runner) Symbols() []string {
	return append([]string(nil), r.symbols...)
}

// Sales returns the deployed sales in deployment order
func (r *Runner) Sales() []*SaleHandle {
	out := make([]*SaleHandle, 0, len(r.saleNames))
	for _, name := range r.saleNames {
		out = append(out, r.sales[name])
	}
	return out
}

// FormatAmount renders an amount of the token at address in token units
func (r *Runner) FormatAmount(address common.Address, amount *uint256.Int) string {
	return r.format(r.symbolOf(address), amount)
}

// Balance returns the balance of a labelled account, formatted in token units
func (r *Runner) Balance(label, symbol string) (string, error) {
	tok, err := r.token(symbol)
	if err != nil {
		return "", err
	}
	return util.FormatUnits(tok.BalanceOf(util.ResolveAddress(label)), tok.Decimals()), nil
}

// BalanceUnits returns the raw base-unit balance of a labelled account
func (r *Runner) BalanceUnits(label, symbol string) (*uint256.Int, error) {
	tok, err := r.token(symbol)
	if err != nil {
		return nil, err
	}
	return tok.BalanceOf(util.ResolveAddress(label)), nil
}

// Positions returns every live stake position ordered by owner label then id
func (r *Runner) Positions() []types.StakePosition {
	var out []types.StakePosition
	labels := r.Accounts()
	sort.Strings(labels)
	for _, label := range labels {
		out = append(out, r.client.Allocator().PositionsOf(util.ResolveAddress(label))...)
	}
	return out
}
