package contractsapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/token"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

const testStart int64 = 1_767_225_600 // 2026-01-01T00:00:00Z

var (
	admin    = util.LabelAddress("admin")
	funder   = util.LabelAddress("funder")
	treasury = util.LabelAddress("treasury")
	alice    = util.LabelAddress("alice")
	bob      = util.LabelAddress("bob")
	carol    = util.LabelAddress("carol")

	factoryAddr = util.LabelAddress("factory")
	ledgerAddr  = util.LabelAddress("ledger")
)

// recordedEvent is an event captured by eventRecorder
type recordedEvent struct {
	source common.Address
	event  types.Event
}

// eventRecorder is an EventSink that keeps every event in memory
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Record(_ context.Context, source common.Address, event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{source: source, event: event})
}

// names returns the emitted event names in order
func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.event.EventName()
	}
	return out
}

func (r *eventRecorder) last() types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1].event
}

// callRecorder is a Metrics that keeps every observed call outcome
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callRecorder) ObserveCall(component, operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.calls = append(c.calls, component+"."+operation+":"+outcome)
}

// fixture is a clock, three tokens and the sinks shared by a test
type fixture struct {
	t       *testing.T
	ctx     context.Context
	clock   *util.ManualClock
	sale    *token.ERC20
	payment *token.ERC20
	stake   *token.ERC20
	tokens  *token.Registry
	events  *eventRecorder
	calls   *callRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		clock:   util.NewManualClock(time.Unix(testStart, 0)),
		sale:    token.New(util.LabelAddress("token:SALE"), "SALE", 18),
		payment: token.New(util.LabelAddress("token:PAY"), "PAY", 18),
		stake:   token.New(util.LabelAddress("token:STAKE"), "STAKE", 18),
		events:  &eventRecorder{},
		calls:   &callRecorder{},
	}
	f.tokens = token.NewRegistry(f.sale, f.payment, f.stake)
	return f
}

func (f *fixture) options() []Option {
	return []Option{
		WithClock(f.clock),
		WithEventSink(f.events),
		WithMetrics(f.calls),
		WithLogger(zap.NewNop()),
	}
}

func (f *fixture) mint(tok *token.ERC20, account common.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, tok.Mint(account, uint256.NewInt(amount)))
}

func (f *fixture) approve(tok *token.ERC20, owner, spender common.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, tok.Approve(f.ctx, owner, spender, uint256.NewInt(amount)))
}

func (f *fixture) warp(unix int64) {
	f.clock.SetUnix(unix)
}

// params is a one-hour flat sale of 7000 units at one payment unit per sale unit, starting at testStart+60
func (f *fixture) params() types.SaleParams {
	return types.SaleParams{
		URI:          "ipfs://sale",
		Funder:       funder,
		Admin:        admin,
		Treasury:     treasury,
		UnitPrice:    uint256.NewInt(types.PriceScale),
		HardCap:      uint256.NewInt(7_000),
		SaleToken:    f.sale.Address(),
		PaymentToken: f.payment.Address(),
		StartTime:    testStart + 60,
		Duration:     3_600,
		Kind:         types.SaleKindPresale,
	}
}

func (f *fixture) saleConfig(params types.SaleParams) types.SaleConfig {
	return types.SaleConfig{
		Address:      util.LabelAddress("sale"),
		Params:       params,
		SaleToken:    f.sale,
		PaymentToken: f.payment,
	}
}

// newSale creates a presale from params without funding it
func (f *fixture) newSale(params types.SaleParams) *Presale {
	f.t.Helper()
	sale, err := NewPresale(f.saleConfig(params), f.options()...)
	require.NoError(f.t, err)
	return sale
}

// fundedSale creates and funds a presale from params
func (f *fixture) fundedSale(params types.SaleParams) *Presale {
	f.t.Helper()
	sale := f.newSale(params)
	f.fund(sale)
	return sale
}

func (f *fixture) fund(sale *Presale) {
	f.t.Helper()
	hardCap := sale.Info().HardCap
	require.NoError(f.t, f.sale.Mint(funder, hardCap))
	require.NoError(f.t, f.sale.Approve(f.ctx, funder, sale.Address(), hardCap))
	require.NoError(f.t, sale.Fund(f.ctx, types.FundInput{Caller: funder, Amount: hardCap}))
}

// buy mints, approves and spends payment units for buyer
func (f *fixture) buy(sale types.ISale, buyer common.Address, payment uint64, proof *types.EligibilityProof) (*types.PurchaseReceipt, error) {
	f.t.Helper()
	f.mint(f.payment, buyer, payment)
	f.approve(f.payment, buyer, sale.Address(), payment)
	return sale.Purchase(f.ctx, types.PurchaseInput{Buyer: buyer, PaymentAmount: uint256.NewInt(payment), Proof: proof})
}

func (f *fixture) newAllocator(tiers []types.StakeTier) *Allocator {
	f.t.Helper()
	allocator, err := NewAllocator(types.AllocatorConfig{
		Owner:      admin,
		Address:    ledgerAddr,
		StakeToken: f.stake,
		Tiers:      tiers,
	}, f.options()...)
	require.NoError(f.t, err)
	return allocator
}

func (f *fixture) stakeFor(allocator *Allocator, staker common.Address, amount uint64, tier uint8) *types.StakePosition {
	f.t.Helper()
	f.mint(f.stake, staker, amount)
	f.approve(f.stake, staker, ledgerAddr, amount)
	pos, err := allocator.Stake(f.ctx, types.StakeInput{Staker: staker, Amount: uint256.NewInt(amount), Tier: tier})
	require.NoError(f.t, err)
	return pos
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}
