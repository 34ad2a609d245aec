package contractsapi

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
)

var curator = util.LabelAddress("curator")

func (f *fixture) newFactory(ledger types.IWeightReader) *PresaleFactory {
	f.t.Helper()
	factory, err := NewPresaleFactory(types.PresaleFactoryConfig{
		Admin:        admin,
		Address:      factoryAddr,
		FeeCollector: treasury,
		Tokens:       f.tokens,
		Ledger:       ledger,
	}, f.options()...)
	require.NoError(f.t, err)
	for code, template := range BuiltinModules() {
		_, err := factory.RegisterTemplate([]byte(code), template)
		require.NoError(f.t, err)
	}
	return factory
}

func (f *fixture) deployInput(params types.SaleParams) types.DeploySaleInput {
	code, ok := ModuleFor(params.Kind)
	require.True(f.t, ok)
	return types.DeploySaleInput{Caller: admin, ModuleCode: code, Params: params}
}

// ═══════════════════════════════════════════════════════════════
// DEPLOYMENT TESTS
// ═══════════════════════════════════════════════════════════════

func TestFactoryDeploySale(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)
	params := f.params()

	address, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), address)

	sale, err := factory.Sale(address)
	require.NoError(t, err)
	assert.Equal(t, address, sale.Address())
	assert.Equal(t, types.SaleStatusUnfunded, sale.Status())

	record, err := factory.Record(address)
	require.NoError(t, err)
	expectedHash, err := HashSaleParams(params)
	require.NoError(t, err)
	assert.Equal(t, expectedHash, record.ParamsHash)
	assert.Equal(t, ModuleHash(PresaleModule), record.ModuleHash)
	assert.Equal(t, admin, record.Creator)
	assert.Equal(t, funder, record.Funder)
	assert.Equal(t, f.sale.Address(), record.SaleToken)
	assert.Equal(t, testStart, record.CreatedAt)
	assert.Equal(t, types.SaleKindPresale, record.Kind)

	second, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 1), second)
	assert.Equal(t, 2, factory.SaleCount())

	records := factory.Sales()
	require.Len(t, records, 2)
	assert.Equal(t, address, records[0].Address)
	assert.Equal(t, second, records[1].Address)

	created, ok := f.events.last().(types.PresaleCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, second, created.Sale)
	assert.Equal(t, funder, created.Funder)
	assert.Equal(t, []string{"PresaleCreated", "PresaleCreated"}, f.events.names())
}

func TestFactoryDeployDefaults(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)
	params := f.params()
	params.Admin = common.Address{}
	params.Treasury = common.Address{}

	address, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)
	sale, err := factory.Sale(address)
	require.NoError(t, err)
	info := sale.Info()
	assert.Equal(t, admin, info.Admin)
	assert.Equal(t, treasury, info.Treasury)

	// the record hashes the params as deployed, defaults included
	record, err := factory.Record(address)
	require.NoError(t, err)
	params.Admin = admin
	params.Treasury = treasury
	expectedHash, err := HashSaleParams(params)
	require.NoError(t, err)
	assert.Equal(t, expectedHash, record.ParamsHash)
}

func TestFactoryDeployRejects(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(in *types.DeploySaleInput)
		expectError error
	}{
		{name: "not a deployer", mutate: func(in *types.DeploySaleInput) { in.Caller = alice }, expectError: types.ErrUnauthorized},
		{name: "start in the past", mutate: func(in *types.DeploySaleInput) { in.Params.StartTime = testStart - 1 }, expectError: types.ErrInvalidParams},
		{name: "fee above ceiling", mutate: func(in *types.DeploySaleInput) { in.Params.FeeBps = types.DefaultMaxFeeBps + 1 }, expectError: types.ErrInvalidParams},
		{name: "end time overflow", mutate: func(in *types.DeploySaleInput) { in.Params.Duration = math.MaxInt64 }, expectError: types.ErrInvalidParams},
		{name: "zero hard cap", mutate: func(in *types.DeploySaleInput) { in.Params.HardCap = new(uint256.Int) }, expectError: types.ErrInvalidParams},
		{name: "empty module", mutate: func(in *types.DeploySaleInput) { in.ModuleCode = nil }, expectError: types.ErrInvalidParams},
		{
			name:        "oversized module",
			mutate:      func(in *types.DeploySaleInput) { in.ModuleCode = make([]byte, types.DefaultMaxModuleSize+1) },
			expectError: types.ErrInvalidParams,
		},
		{
			name:        "unknown sale token",
			mutate:      func(in *types.DeploySaleInput) { in.Params.SaleToken = util.LabelAddress("token:NOPE") },
			expectError: types.ErrInvalidParams,
		},
		{
			name:        "unregistered module",
			mutate:      func(in *types.DeploySaleInput) { in.ModuleCode = []byte("not a template") },
			expectError: types.ErrDeploymentFailed,
		},
		{
			name:        "template of another kind",
			mutate:      func(in *types.DeploySaleInput) { in.ModuleCode = AllocationModule },
			expectError: types.ErrDeploymentFailed,
		},
		{
			name: "allocation sale without ledger",
			mutate: func(in *types.DeploySaleInput) {
				in.ModuleCode = AllocationModule
				in.Params.Kind = types.SaleKindAllocation
			},
			expectError: types.ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			factory := f.newFactory(nil)
			input := f.deployInput(f.params())
			tt.mutate(&input)

			_, err := factory.DeploySale(f.ctx, input)
			require.ErrorIs(t, err, tt.expectError)
			assert.Zero(t, factory.SaleCount())
			assert.Empty(t, f.events.names())

			// the failed attempt did not consume an address
			address, err := factory.DeploySale(f.ctx, f.deployInput(f.params()))
			require.NoError(t, err)
			assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), address)
		})
	}
}

func TestFactoryInstantiationFailure(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)
	broken := []byte("launchpad.template.broken")
	_, err := factory.RegisterTemplate(broken, saleTemplate{
		name: "broken",
		kind: types.SaleKindPresale,
		build: func(types.SaleConfig, ...Option) (types.ISale, error) {
			return nil, errors.New("constructor reverted")
		},
	})
	require.NoError(t, err)

	input := f.deployInput(f.params())
	input.ModuleCode = broken
	_, err = factory.DeploySale(f.ctx, input)
	require.ErrorIs(t, err, types.ErrDeploymentFailed)
	assert.Contains(t, err.Error(), "constructor reverted")

	_, err = factory.Sale(crypto.CreateAddress(factoryAddr, 0))
	require.ErrorIs(t, err, types.ErrSaleNotFound)
	_, err = factory.Record(crypto.CreateAddress(factoryAddr, 0))
	require.ErrorIs(t, err, types.ErrSaleNotFound)
}

func TestFactoryDeploysAllocationSaleWithLedger(t *testing.T) {
	f := newFixture(t)
	allocator := f.newAllocator(types.DefaultStakeTiers(2_500))
	f.stakeFor(allocator, alice, 100, 0)
	factory := f.newFactory(allocator)

	params := f.params()
	params.Kind = types.SaleKindAllocation
	address, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)

	sale, err := factory.Sale(address)
	require.NoError(t, err)
	allocation, ok := sale.(types.IAllocationSale)
	require.True(t, ok)
	assert.Equal(t, uint64(7_000), allocation.AllocationOf(alice).Uint64())
	assert.True(t, allocation.AllocationOf(bob).IsZero())
	require.NotNil(t, sale.Info().Ledger)
	assert.Equal(t, ledgerAddr, *sale.Info().Ledger)
}

func TestFactorySalesShareSinks(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)
	params := f.params()
	params.HardCap = u(10)

	address, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)
	sale, err := factory.Sale(address)
	require.NoError(t, err)

	f.mint(f.sale, funder, 10)
	f.approve(f.sale, funder, address, 10)
	require.NoError(t, sale.Fund(f.ctx, types.FundInput{Caller: funder, Amount: u(10)}))

	assert.Equal(t, []string{"PresaleCreated", "Fund"}, f.events.names())
	assert.Equal(t, []string{"presale_factory.deploy_sale:ok", "sale.fund:ok"}, f.calls.calls)
}

// ═══════════════════════════════════════════════════════════════
// ROLE AND SETTINGS TESTS
// ═══════════════════════════════════════════════════════════════

func TestFactoryDeployerRole(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)

	err := factory.GrantDeployer(f.ctx, types.DeployerRoleInput{Caller: curator, Account: curator})
	require.ErrorIs(t, err, types.ErrUnauthorized)
	assert.False(t, factory.IsDeployer(curator))
	assert.True(t, factory.IsDeployer(admin))

	require.NoError(t, factory.GrantDeployer(f.ctx, types.DeployerRoleInput{Caller: admin, Account: curator}))
	assert.True(t, factory.IsDeployer(curator))

	input := f.deployInput(f.params())
	input.Caller = curator
	address, err := factory.DeploySale(f.ctx, input)
	require.NoError(t, err)

	assert.Len(t, factory.SalesByCreator(curator), 1)
	assert.Empty(t, factory.SalesByCreator(admin))
	record, err := factory.Record(address)
	require.NoError(t, err)
	assert.Equal(t, curator, record.Creator)

	require.NoError(t, factory.RevokeDeployer(f.ctx, types.DeployerRoleInput{Caller: admin, Account: curator}))
	assert.False(t, factory.IsDeployer(curator))
	_, err = factory.DeploySale(f.ctx, input)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	err = factory.GrantDeployer(f.ctx, types.DeployerRoleInput{Caller: admin})
	require.ErrorIs(t, err, types.ErrInvalidParams)

	assert.Equal(t, []string{"DeployerRoleChanged", "PresaleCreated", "DeployerRoleChanged"}, f.events.names())
}

func TestFactorySettings(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)
	assert.Equal(t, uint64(types.DefaultMaxFeeBps), factory.MaxFeeBps())
	assert.Equal(t, treasury, factory.FeeCollector())

	collector := util.LabelAddress("collector")
	require.ErrorIs(t, factory.SetFeeCollector(f.ctx, alice, collector), types.ErrUnauthorized)
	require.ErrorIs(t, factory.SetFeeCollector(f.ctx, admin, common.Address{}), types.ErrInvalidParams)
	require.NoError(t, factory.SetFeeCollector(f.ctx, admin, collector))
	assert.Equal(t, collector, factory.FeeCollector())

	require.ErrorIs(t, factory.SetMaxFeeBps(f.ctx, alice, 100), types.ErrUnauthorized)
	require.ErrorIs(t, factory.SetMaxFeeBps(f.ctx, admin, types.BasisPoints+1), types.ErrInvalidParams)
	require.NoError(t, factory.SetMaxFeeBps(f.ctx, admin, 2_000))

	params := f.params()
	params.Treasury = common.Address{}
	params.FeeBps = 1_500
	address, err := factory.DeploySale(f.ctx, f.deployInput(params))
	require.NoError(t, err)
	sale, err := factory.Sale(address)
	require.NoError(t, err)
	assert.Equal(t, collector, sale.Info().Treasury)
	assert.Equal(t, uint64(1_500), sale.Info().FeeBps)
}

// ═══════════════════════════════════════════════════════════════
// TEMPLATE REGISTRY TESTS
// ═══════════════════════════════════════════════════════════════

func TestFactoryTemplates(t *testing.T) {
	f := newFixture(t)
	factory := f.newFactory(nil)

	templates := factory.Templates()
	require.Len(t, templates, 3)
	assert.Equal(t, "allocation", templates[0].Name)
	assert.Equal(t, "presale", templates[1].Name)
	assert.Equal(t, "private", templates[2].Name)
	assert.Equal(t, ModuleHash(PresaleModule), templates[1].Hash)

	// re-registering the same template is harmless, a different one is not
	_, err := factory.RegisterTemplate(PresaleModule, PresaleTemplate())
	require.NoError(t, err)
	_, err = factory.RegisterTemplate(PresaleModule, PrivateTemplate())
	require.Error(t, err)

	_, err = factory.RegisterTemplate(nil, PresaleTemplate())
	require.Error(t, err)
	_, err = factory.RegisterTemplate(make([]byte, types.DefaultMaxModuleSize+1), PresaleTemplate())
	require.Error(t, err)
}

func TestModuleFor(t *testing.T) {
	for _, kind := range []types.SaleKind{types.SaleKindPresale, types.SaleKindAllocation, types.SaleKindPrivate} {
		code, ok := ModuleFor(kind)
		require.True(t, ok)
		template, ok := BuiltinModules()[string(code)]
		require.True(t, ok)
		assert.Equal(t, kind, template.Kind())
	}
	_, ok := ModuleFor(types.SaleKind(9))
	assert.False(t, ok)
}

func TestNewPresaleFactoryDefaults(t *testing.T) {
	f := newFixture(t)
	_, err := NewPresaleFactory(types.PresaleFactoryConfig{Admin: admin, Address: factoryAddr, Tokens: f.tokens})
	require.Error(t, err)

	factory, err := NewPresaleFactory(types.PresaleFactoryConfig{
		Admin:        admin,
		Address:      factoryAddr,
		FeeCollector: treasury,
		Tokens:       f.tokens,
		MaxFeeBps:    300,
	}, f.options()...)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), factory.MaxFeeBps())
	assert.Equal(t, admin, factory.Admin())
	assert.Equal(t, factoryAddr, factory.Address())
	assert.Empty(t, factory.Templates())
}
