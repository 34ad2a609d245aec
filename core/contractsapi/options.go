package contractsapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trufnetwork/launchpad-go/core/logging"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

// Option configures an Allocator, PresaleFactory or sale
type Option func(*options)

type options struct {
	clock   types.Clock
	events  types.EventSink
	metrics types.Metrics
	logger  *zap.Logger
}

// WithClock sets the time source for time-gated operations
func WithClock(clock types.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithEventSink sets where emitted events are recorded
func WithEventSink(sink types.EventSink) Option {
	return func(o *options) {
		o.events = sink
	}
}

// WithMetrics sets the call observer
func WithMetrics(metrics types.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLogger sets the component logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = util.SystemClock{}
	}
	if o.logger == nil {
		o.logger = logging.Named(component)
	}
	return o
}

// asOptions turns resolved options back into Option values so a factory can hand them to the sales it creates
func (o options) asOptions() []Option {
	return []Option{
		WithClock(o.clock),
		WithEventSink(o.events),
		WithMetrics(o.metrics),
		WithLogger(o.logger),
	}
}

func (o options) now() int64 {
	return o.clock.Now().Unix()
}

func (o options) emit(ctx context.Context, source common.Address, event types.Event) {
	if o.events != nil {
		o.events.Record(ctx, source, event)
	}
}

func (o options) observe(component, operation string, err error) {
	if o.metrics != nil {
		o.metrics.ObserveCall(component, operation, err)
	}
}
