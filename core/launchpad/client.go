package launchpad

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/contractsapi"
	"github.com/trufnetwork/launchpad-go/core/journal"
	"github.com/trufnetwork/launchpad-go/core/logging"
	"github.com/trufnetwork/launchpad-go/core/metrics"
	"github.com/trufnetwork/launchpad-go/core/token"
	"github.com/trufnetwork/launchpad-go/core/types"
	"go.uber.org/zap"
)

// Config describes a launchpad deployment
type Config struct {
	Admin          common.Address    `validate:"required" mapstructure:"admin"`
	FeeCollector   common.Address    `mapstructure:"fee_collector"` // defaults to Admin
	FactoryAddress common.Address    `validate:"required" mapstructure:"factory"`
	LedgerAddress  common.Address    `validate:"required" mapstructure:"ledger"`
	StakeToken     common.Address    `validate:"required" mapstructure:"stake_token"`
	Tiers          []types.StakeTier `validate:"required,min=1,dive" mapstructure:"tiers"`
	MaxFeeBps      uint64            `validate:"lte=10000" mapstructure:"max_fee_bps"`
}

type Client struct {
	cfg       Config
	tokens    *token.Registry
	allocator *contractsapi.Allocator
	factory   *contractsapi.PresaleFactory

	clock     types.Clock
	logger    *zap.Logger
	journal   *journal.Journal
	collector *metrics.Collector
	templates []moduleTemplate
}

var _ types.Client = (*Client)(nil)

type Option func(*Client)

type moduleTemplate struct {
	code     []byte
	template contractsapi.Template
}

// NewClient builds the ledger and the factory and registers the built-in templates.
// The stake token and every token later used by a sale must be in tokens.
func NewClient(cfg Config, tokens *token.Registry, options ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("token registry is required")
	}
	if cfg.FeeCollector == (common.Address{}) {
		cfg.FeeCollector = cfg.Admin
	}
	c := &Client{cfg: cfg, tokens: tokens, logger: logging.Named("launchpad")}
	for _, option := range options {
		option(c)
	}

	// Validate the config
	if err := c.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	stakeToken, ok := tokens.Token(cfg.StakeToken)
	if !ok {
		return nil, errors.Errorf("stake token %s is not registered", cfg.StakeToken.Hex())
	}

	opts := c.componentOptions()
	allocator, err := contractsapi.NewAllocator(types.AllocatorConfig{
		Owner:      cfg.Admin,
		Address:    cfg.LedgerAddress,
		StakeToken: stakeToken,
		Tiers:      cfg.Tiers,
	}, append(opts, contractsapi.WithLogger(c.logger.Named("allocator")))...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.allocator = allocator

	factory, err := contractsapi.NewPresaleFactory(types.PresaleFactoryConfig{
		Admin:        cfg.Admin,
		Address:      cfg.FactoryAddress,
		FeeCollector: cfg.FeeCollector,
		Tokens:       tokens,
		Ledger:       allocator,
		MaxFeeBps:    cfg.MaxFeeBps,
	}, append(opts, contractsapi.WithLogger(c.logger.Named("factory")))...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.factory = factory

	for code, template := range contractsapi.BuiltinModules() {
		if _, err := factory.RegisterTemplate([]byte(code), template); err != nil {
			return nil, errors.Wrapf(err, "register built-in template %s", template.Name())
		}
	}
	for _, extra := range c.templates {
		if _, err := factory.RegisterTemplate(extra.code, extra.template); err != nil {
			return nil, errors.Wrapf(err, "register template %s", extra.template.Name())
		}
	}

	c.logger.Info("launchpad ready",
		zap.String("admin", cfg.Admin.Hex()),
		zap.String("factory", cfg.FactoryAddress.Hex()),
		zap.String("ledger", cfg.LedgerAddress.Hex()),
		zap.Int("tiers", len(cfg.Tiers)),
	)
	return c, nil
}

func (c *Client) Validate() error {
	return types.ValidateStruct(c.cfg)
}

// WithClock sets the time source of every component
func WithClock(clock types.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the parent logger of every component
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJournal records every emitted event in j
func WithJournal(j *journal.Journal) Option {
	return func(c *Client) {
		c.journal = j
	}
}

// WithMetrics reports calls and events to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.collector = collector
	}
}

// WithTemplate registers an additional sale template under the hash of code
func WithTemplate(code []byte, template contractsapi.Template) Option {
	return func(c *Client) {
		c.templates = append(c.templates, moduleTemplate{code: code, template: template})
	}
}

func (c *Client) componentOptions() []contractsapi.Option {
	var opts []contractsapi.Option
	if c.clock != nil {
		opts = append(opts, contractsapi.WithClock(c.clock))
	}

	var sinks fanout
	if c.journal != nil {
		sinks = append(sinks, c.journal)
	}
	if c.collector != nil {
		sinks = append(sinks, c.collector)
		opts = append(opts, contractsapi.WithMetrics(c.collector))
	}
	if len(sinks) > 0 {
		opts = append(opts, contractsapi.WithEventSink(sinks))
	}
	return opts
}

// fanout delivers each event to every sink in order
type fanout []types.EventSink

func (f fanout) Record(ctx context.Context, source common.Address, event types.Event) {
	for _, sink := range f {
		sink.Record(ctx, source, event)
	}
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Allocator() types.IAllocator {
	return c.allocator
}

func (c *Client) Factory() types.IPresaleFactory {
	return c.factory
}

// PresaleFactory returns the concrete factory for template and admin operations
func (c *Client) PresaleFactory() *contractsapi.PresaleFactory {
	return c.factory
}

func (c *Client) Token(address common.Address) (types.IERC20, bool) {
	return c.tokens.Token(address)
}

func (c *Client) Tokens() *token.Registry {
	return c.tokens
}

// Journal returns the event journal, nil when none was configured
func (c *Client) Journal() *journal.Journal {
	return c.journal
}

func (c *Client) DeploySale(ctx context.Context, caller common.Address, params types.SaleParams) (types.ISale, error) {
	code, ok := contractsapi.ModuleFor(params.Kind)
	if !ok {
		return nil, errors.Wrapf(types.ErrInvalidParams, "no built-in template for kind %s", params.Kind)
	}
	address, err := c.factory.DeploySale(ctx, types.DeploySaleInput{
		Caller:     caller,
		ModuleCode: code,
		Params:     params,
	})
	if err != nil {
		return nil, err
	}
	return c.LoadSale(address)
}

func (c *Client) LoadSale(address common.Address) (types.ISale, error) {
	return c.factory.Sale(address)
}

func (c *Client) LoadAllocationSale(address common.Address) (types.IAllocationSale, error) {
	sale, err := c.factory.Sale(address)
	if err != nil {
		return nil, err
	}
	allocationSale, ok := sale.(types.IAllocationSale)
	if kind := sale.Info().Kind; !ok || kind != types.SaleKindAllocation {
		return nil, errors.Errorf("sale %s is a %s sale, not an allocation sale", address.Hex(), kind)
	}
	return allocationSale, nil
}
