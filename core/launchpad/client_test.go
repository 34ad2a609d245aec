package launchpad

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/contractsapi"
	"github.com/trufnetwork/launchpad-go/core/journal"
	"github.com/trufnetwork/launchpad-go/core/metrics"
	"github.com/trufnetwork/launchpad-go/core/token"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

const start int64 = 1_767_225_600

var (
	admin  = util.LabelAddress("admin")
	funder = util.LabelAddress("funder")
	alice  = util.LabelAddress("alice")
)

type env struct {
	ctx     context.Context
	clock   *util.ManualClock
	sale    *token.ERC20
	payment *token.ERC20
	stake   *token.ERC20
	tokens  *token.Registry
}

func newEnv() *env {
	e := &env{
		ctx:     context.Background(),
		clock:   util.NewManualClock(time.Unix(start, 0)),
		sale:    token.New(util.LabelAddress("token:SALE"), "SALE", 18),
		payment: token.New(util.LabelAddress("token:USDC"), "USDC", 6),
		stake:   token.New(util.LabelAddress("token:STAKE"), "STAKE", 18),
	}
	e.tokens = token.NewRegistry(e.sale, e.payment, e.stake)
	return e
}

func (e *env) config() Config {
	return Config{
		Admin:          admin,
		FactoryAddress: util.LabelAddress("factory"),
		LedgerAddress:  util.LabelAddress("ledger"),
		StakeToken:     e.stake.Address(),
		Tiers:          types.DefaultStakeTiers(2_500),
	}
}

func (e *env) params() types.SaleParams {
	return types.SaleParams{
		Funder:       funder,
		UnitPrice:    uint256.NewInt(types.PriceScale),
		HardCap:      uint256.NewInt(7_000),
		SaleToken:    e.sale.Address(),
		PaymentToken: e.payment.Address(),
		StartTime:    start + 60,
		Duration:     3_600,
	}
}

func TestNewClientValidation(t *testing.T) {
	e := newEnv()

	_, err := NewClient(e.config(), nil)
	require.Error(t, err)

	noTiers := e.config()
	noTiers.Tiers = nil
	_, err = NewClient(noTiers, e.tokens, WithLogger(zap.NewNop()))
	require.Error(t, err)

	noFactory := e.config()
	noFactory.FactoryAddress = common.Address{}
	_, err = NewClient(noFactory, e.tokens, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FactoryAddress")

	unknownStake := e.config()
	unknownStake.StakeToken = util.LabelAddress("token:NOPE")
	_, err = NewClient(unknownStake, e.tokens, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	client, err := NewClient(e.config(), e.tokens, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, admin, client.Config().FeeCollector)
	assert.Len(t, client.PresaleFactory().Templates(), 3)
	assert.Nil(t, client.Journal())

	got, ok := client.Token(e.payment.Address())
	require.True(t, ok)
	assert.Equal(t, uint8(6), got.Decimals())
}

func TestClientSaleLifecycle(t *testing.T) {
	e := newEnv()
	j, err := journal.Open("journal", journal.WithFS(vfs.NewMem()), journal.WithClock(e.clock), journal.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer j.Close()
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	client, err := NewClient(e.config(), e.tokens,
		WithClock(e.clock),
		WithLogger(zap.NewNop()),
		WithJournal(j),
		WithMetrics(collector),
	)
	require.NoError(t, err)

	sale, err := client.DeploySale(e.ctx, admin, e.params())
	require.NoError(t, err)

	require.NoError(t, e.sale.Mint(funder, uint256.NewInt(7_000)))
	require.NoError(t, e.sale.Approve(e.ctx, funder, sale.Address(), uint256.NewInt(7_000)))
	require.NoError(t, sale.Fund(e.ctx, types.FundInput{Caller: funder, Amount: uint256.NewInt(7_000)}))

	e.clock.SetUnix(start + 60)
	require.NoError(t, e.payment.Mint(alice, uint256.NewInt(10)))
	require.NoError(t, e.payment.Approve(e.ctx, alice, sale.Address(), uint256.NewInt(1)))
	_, err = sale.Purchase(e.ctx, types.PurchaseInput{Buyer: alice, PaymentAmount: uint256.NewInt(1)})
	require.NoError(t, err)
	end := sale.Info().EndTime
	require.NoError(t, sale.SetLinearVestingEndTime(e.ctx, types.SetVestingInput{Caller: admin, VestingEnd: end + 3_600}))

	e.clock.SetUnix(end)
	claimed, err := sale.Claim(e.ctx, types.ClaimInput{Buyer: alice})
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())

	e.clock.SetUnix(end + 3_600)
	claimed, err = sale.Claim(e.ctx, types.ClaimInput{Buyer: alice})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), claimed.Uint64())
	assert.Equal(t, uint64(9), e.payment.BalanceOf(alice).Uint64())

	entries, err := j.Events(0)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	assert.Equal(t, []string{"PresaleCreated", "Fund", "Purchase", "SetLinearVestingEndTime", "Claim"}, names)
	assert.Equal(t, end+3_600, entries[len(entries)-1].Time)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Calls().WithLabelValues("sale", "claim", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Events().WithLabelValues("Purchase")))
}

func TestClientAllocationSale(t *testing.T) {
	e := newEnv()
	client, err := NewClient(e.config(), e.tokens, WithClock(e.clock), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	ledger := client.Config().LedgerAddress
	require.NoError(t, e.stake.Mint(alice, uint256.NewInt(100)))
	require.NoError(t, e.stake.Approve(e.ctx, alice, ledger, uint256.NewInt(100)))
	_, err = client.Allocator().Stake(e.ctx, types.StakeInput{Staker: alice, Amount: uint256.NewInt(100), Tier: 1})
	require.NoError(t, err)

	params := e.params()
	params.Kind = types.SaleKindAllocation
	sale, err := client.DeploySale(e.ctx, admin, params)
	require.NoError(t, err)

	allocation, err := client.LoadAllocationSale(sale.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(7_000), allocation.AllocationOf(alice).Uint64())

	presale, err := client.DeploySale(e.ctx, admin, e.params())
	require.NoError(t, err)
	_, err = client.LoadAllocationSale(presale.Address())
	require.Error(t, err)

	_, err = client.LoadSale(util.LabelAddress("nowhere"))
	require.ErrorIs(t, err, types.ErrSaleNotFound)

	params.Kind = types.SaleKind(9)
	_, err = client.DeploySale(e.ctx, admin, params)
	require.ErrorIs(t, err, types.ErrInvalidParams)
}

func TestClientExtraTemplate(t *testing.T) {
	e := newEnv()
	code := []byte("launchpad.template.presale.v2")
	client, err := NewClient(e.config(), e.tokens,
		WithClock(e.clock),
		WithLogger(zap.NewNop()),
		WithTemplate(code, contractsapi.PresaleTemplate()),
	)
	require.NoError(t, err)

	templates := client.PresaleFactory().Templates()
	assert.Len(t, templates, 4)

	address, err := client.PresaleFactory().DeploySale(e.ctx, types.DeploySaleInput{Caller: admin, ModuleCode: code, Params: e.params()})
	require.NoError(t, err)
	record, err := client.Factory().Record(address)
	require.NoError(t, err)
	assert.Equal(t, contractsapi.ModuleHash(code), record.ModuleHash)
}
