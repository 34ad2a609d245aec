package contractsapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

const componentFactory = "presale_factory"

// PresaleFactory instantiates sales from templates registered under their
// module hash and keeps the append-only sale registry.
type PresaleFactory struct {
	guard callGuard
	opts  options
	cfg   types.PresaleFactoryConfig

	mu           sync.RWMutex
	templates    map[common.Hash]Template
	deployers    map[common.Address]struct{}
	feeCollector common.Address
	maxFeeBps    uint64
	nonce        uint64
	sales        map[common.Address]types.ISale
	records      []types.SaleRecord
	recordIndex  map[common.Address]int
}

// Compile-time check that PresaleFactory implements IPresaleFactory
var _ types.IPresaleFactory = (*PresaleFactory)(nil)

// NewPresaleFactory creates a factory with no templates registered
func NewPresaleFactory(cfg types.PresaleFactoryConfig, opts ...Option) (*PresaleFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid factory config")
	}
	if cfg.MaxFeeBps == 0 {
		cfg.MaxFeeBps = types.DefaultMaxFeeBps
	}
	if cfg.MaxModuleSize == 0 {
		cfg.MaxModuleSize = types.DefaultMaxModuleSize
	}

	f := &PresaleFactory{
		guard:        callGuard{instance: cfg.Address},
		opts:         newOptions(componentFactory, opts),
		cfg:          cfg,
		templates:    make(map[common.Hash]Template),
		deployers:    make(map[common.Address]struct{}),
		feeCollector: cfg.FeeCollector,
		maxFeeBps:    cfg.MaxFeeBps,
		sales:        make(map[common.Address]types.ISale),
		recordIndex:  make(map[common.Address]int),
	}
	f.opts.logger = f.opts.logger.With(zap.String("factory", cfg.Address.Hex()))
	return f, nil
}

// RegisterTemplate makes a template deployable under the hash of code.
// Registering a different template under a known hash is rejected.
func (f *PresaleFactory) RegisterTemplate(code []byte, template Template) (common.Hash, error) {
	if len(code) == 0 {
		return common.Hash{}, errors.New("module code is required")
	}
	if len(code) > f.cfg.MaxModuleSize {
		return common.Hash{}, errors.Errorf("module code of %d bytes exceeds limit %d", len(code), f.cfg.MaxModuleSize)
	}
	hash := ModuleHash(code)

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.templates[hash]; ok && existing.Name() != template.Name() {
		return common.Hash{}, errors.Errorf("module %s already registered to template %s", hash.Hex(), existing.Name())
	}
	f.templates[hash] = template
	f.opts.logger.Debug("template registered", zap.String("module", hash.Hex()), zap.String("template", template.Name()))
	return hash, nil
}

// Templates lists the registered templates ordered by name
func (f *PresaleFactory) Templates() []TemplateInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]TemplateInfo, 0, len(f.templates))
	for hash, template := range f.templates {
		out = append(out, TemplateInfo{Hash: hash, Name: template.Name(), Kind: template.Kind()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ═══════════════════════════════════════════════════════════════
// DEPLOYMENT
// ═══════════════════════════════════════════════════════════════

// DeploySale instantiates the template selected by the module code and
// registers the new sale. A failed deployment leaves no registry entry and
// does not consume an address.
func (f *PresaleFactory) DeploySale(ctx context.Context, input types.DeploySaleInput) (address common.Address, err error) {
	defer func() { f.opts.observe(componentFactory, "deploy_sale", err) }()

	if err := input.Validate(); err != nil {
		return common.Address{}, invalidParams(err)
	}

	ctx, release, err := f.guard.enter(ctx)
	if err != nil {
		return common.Address{}, err
	}
	defer release()

	if !f.canDeploy(input.Caller) {
		return common.Address{}, errors.Wrapf(types.ErrUnauthorized, "%s may not deploy sales", input.Caller.Hex())
	}

	params := input.Params
	if params.Admin == (common.Address{}) {
		params.Admin = input.Caller
	}
	f.mu.RLock()
	if params.Treasury == (common.Address{}) {
		params.Treasury = f.feeCollector
	}
	maxFeeBps := f.maxFeeBps
	template, registered := f.templates[ModuleHash(input.ModuleCode)]
	nonce := f.nonce
	f.mu.RUnlock()

	if err := f.checkDeployParams(params, len(input.ModuleCode), maxFeeBps); err != nil {
		return common.Address{}, invalidParams(err)
	}

	saleToken, ok := f.cfg.Tokens.Token(params.SaleToken)
	if !ok {
		return common.Address{}, invalidParams(fmt.Errorf("sale token %s is not known", params.SaleToken.Hex()))
	}
	paymentToken, ok := f.cfg.Tokens.Token(params.PaymentToken)
	if !ok {
		return common.Address{}, invalidParams(fmt.Errorf("payment token %s is not known", params.PaymentToken.Hex()))
	}

	moduleHash := ModuleHash(input.ModuleCode)
	if !registered {
		return common.Address{}, errors.Wrapf(types.ErrDeploymentFailed, "no template registered for module %s", moduleHash.Hex())
	}
	if template.Kind() != params.Kind {
		return common.Address{}, errors.Wrapf(types.ErrDeploymentFailed, "template %s builds %s sales, params ask for %s",
			template.Name(), template.Kind(), params.Kind)
	}

	paramsHash, err := HashSaleParams(params)
	if err != nil {
		return common.Address{}, invalidParams(err)
	}

	address = crypto.CreateAddress(f.cfg.Address, nonce)
	cfg := types.SaleConfig{
		Address:      address,
		Params:       params,
		SaleToken:    saleToken,
		PaymentToken: paymentToken,
	}
	if params.Kind == types.SaleKindAllocation {
		cfg.Ledger = f.cfg.Ledger
	}

	saleOpts := append(f.opts.asOptions(), WithLogger(f.opts.logger.Named(componentSale)))
	sale, err := template.New(cfg, saleOpts...)
	if err != nil {
		f.opts.logger.Debug("instantiation failed", zap.String("template", template.Name()), zap.Error(err))
		return common.Address{}, deploymentFailed(template.Name(), err)
	}

	record := types.SaleRecord{
		Address:    address,
		Creator:    input.Caller,
		CreatedAt:  f.opts.now(),
		ModuleHash: moduleHash,
		ParamsHash: paramsHash,
		Funder:     params.Funder,
		SaleToken:  params.SaleToken,
		Kind:       params.Kind,
	}

	f.mu.Lock()
	f.nonce++
	f.sales[address] = sale
	f.recordIndex[address] = len(f.records)
	f.records = append(f.records, record)
	f.mu.Unlock()

	f.opts.logger.Info("sale deployed",
		zap.String("sale", address.Hex()),
		zap.String("template", template.Name()),
		zap.String("creator", input.Caller.Hex()),
		zap.String("funder", params.Funder.Hex()),
		zap.Strings("tokens", util.AddressesToStrings([]common.Address{params.SaleToken, params.PaymentToken})),
		zap.Strings("eligibility_roots", util.HashesToStrings(params.EligibilityRoots)),
	)
	f.opts.emit(ctx, f.cfg.Address, types.PresaleCreatedEvent{
		Sale:      address,
		Funder:    params.Funder,
		SaleToken: params.SaleToken,
	})
	return address, nil
}

// checkDeployParams runs the checks that depend on factory state and the clock
func (f *PresaleFactory) checkDeployParams(params types.SaleParams, moduleSize int, maxFeeBps uint64) error {
	if moduleSize > f.cfg.MaxModuleSize {
		return fmt.Errorf("module code of %d bytes exceeds limit %d", moduleSize, f.cfg.MaxModuleSize)
	}
	if now := f.opts.now(); params.StartTime < now {
		return fmt.Errorf("start_time %d is in the past (now %d)", params.StartTime, now)
	}
	if params.FeeBps > maxFeeBps {
		return fmt.Errorf("fee_bps %d exceeds the factory ceiling %d", params.FeeBps, maxFeeBps)
	}
	if params.Kind == types.SaleKindAllocation && len(params.TierAllocations) == 0 && f.cfg.Ledger == nil {
		return fmt.Errorf("allocation sales need tier allocations or a factory weight ledger")
	}
	return nil
}

func (f *PresaleFactory) canDeploy(caller common.Address) bool {
	if caller == f.cfg.Admin {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.deployers[caller]
	return ok
}

// ═══════════════════════════════════════════════════════════════
// ROLE MANAGEMENT
// ═══════════════════════════════════════════════════════════════

// GrantDeployer allows account to deploy sales. Admin only.
func (f *PresaleFactory) GrantDeployer(ctx context.Context, input types.DeployerRoleInput) (err error) {
	defer func() { f.opts.observe(componentFactory, "grant_deployer", err) }()
	return f.setDeployer(ctx, input, true)
}

// RevokeDeployer removes the deployer role of account. Admin only.
func (f *PresaleFactory) RevokeDeployer(ctx context.Context, input types.DeployerRoleInput) (err error) {
	defer func() { f.opts.observe(componentFactory, "revoke_deployer", err) }()
	return f.setDeployer(ctx, input, false)
}

func (f *PresaleFactory) setDeployer(ctx context.Context, input types.DeployerRoleInput, granted bool) error {
	if err := input.Validate(); err != nil {
		return invalidParams(err)
	}
	ctx, release, err := f.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if input.Caller != f.cfg.Admin {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the factory admin", input.Caller.Hex())
	}

	f.mu.Lock()
	if granted {
		f.deployers[input.Account] = struct{}{}
	} else {
		delete(f.deployers, input.Account)
	}
	f.mu.Unlock()

	f.opts.logger.Info("deployer role changed", zap.String("account", input.Account.Hex()), zap.Bool("granted", granted))
	f.opts.emit(ctx, f.cfg.Address, types.DeployerRoleEvent{Account: input.Account, Granted: granted})
	return nil
}

// IsDeployer reports whether account may deploy sales
func (f *PresaleFactory) IsDeployer(account common.Address) bool {
	return f.canDeploy(account)
}

// SetFeeCollector changes the default treasury of future sales. Admin only.
func (f *PresaleFactory) SetFeeCollector(ctx context.Context, caller, collector common.Address) (err error) {
	defer func() { f.opts.observe(componentFactory, "set_fee_collector", err) }()

	if collector == (common.Address{}) {
		return invalidParams(fmt.Errorf("fee collector is required"))
	}
	_, release, err := f.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if caller != f.cfg.Admin {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the factory admin", caller.Hex())
	}
	f.mu.Lock()
	f.feeCollector = collector
	f.mu.Unlock()
	f.opts.logger.Info("fee collector changed", zap.String("collector", collector.Hex()))
	return nil
}

// SetMaxFeeBps changes the fee ceiling future sales are checked against. Admin only.
func (f *PresaleFactory) SetMaxFeeBps(ctx context.Context, caller common.Address, maxFeeBps uint64) (err error) {
	defer func() { f.opts.observe(componentFactory, "set_max_fee", err) }()

	if maxFeeBps > types.BasisPoints {
		return invalidParams(fmt.Errorf("max fee must be at most %d bps, got %d", types.BasisPoints, maxFeeBps))
	}
	_, release, err := f.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if caller != f.cfg.Admin {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the factory admin", caller.Hex())
	}
	f.mu.Lock()
	f.maxFeeBps = maxFeeBps
	f.mu.Unlock()
	f.opts.logger.Info("max fee changed", zap.Uint64("max_fee_bps", maxFeeBps))
	return nil
}

// ═══════════════════════════════════════════════════════════════
// READ OPERATIONS
// ═══════════════════════════════════════════════════════════════

func (f *PresaleFactory) Address() common.Address {
	return f.cfg.Address
}

func (f *PresaleFactory) Admin() common.Address {
	return f.cfg.Admin
}

func (f *PresaleFactory) FeeCollector() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeCollector
}

func (f *PresaleFactory) MaxFeeBps() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maxFeeBps
}

// Sale returns a deployed sale instance
func (f *PresaleFactory) Sale(address common.Address) (types.ISale, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sale, ok := f.sales[address]
	if !ok {
		return nil, errors.Wrapf(types.ErrSaleNotFound, "sale %s", address.Hex())
	}
	return sale, nil
}

// Record returns the registry entry of a deployed sale
func (f *PresaleFactory) Record(address common.Address) (*types.SaleRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i, ok := f.recordIndex[address]
	if !ok {
		return nil, errors.Wrapf(types.ErrSaleNotFound, "sale %s", address.Hex())
	}
	record := f.records[i]
	return &record, nil
}

// Sales returns every registry entry in creation order
func (f *PresaleFactory) Sales() []types.SaleRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.SaleRecord, len(f.records))
	copy(out, f.records)
	return out
}

// SalesByCreator returns the registry entries created by creator in creation order
func (f *PresaleFactory) SalesByCreator(creator common.Address) []types.SaleRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []types.SaleRecord
	for _, record := range f.records {
		if record.Creator == creator {
			out = append(out, record)
		}
	}
	return out
}

// SaleCount returns the number of deployed sales
func (f *PresaleFactory) SaleCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}
