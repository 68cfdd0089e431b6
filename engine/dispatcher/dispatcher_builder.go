package dispatcher

import (
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/log"
)

// DispatcherBuilderOption is a functional option for configuring a Dispatcher via NewDispatcher.
type DispatcherBuilderOption func(*dispatcher)

// WithQueueCapacity sets the number of admitted jobs the queue holds. Negative values are ignored.
//
// Parameters:
//   - n: the queue capacity
//
// Returns:
//   - DispatcherBuilderOption: a function that applies the queue capacity option to a dispatcher
func WithQueueCapacity(n int) DispatcherBuilderOption {
	return func(d *dispatcher) {
		if n >= 0 {
			d.queueCapacity = n
		}
	}
}

// WithFaultHandler replaces the handler called on dispatcher faults. The default logs the fault as
// critical and panics.
//
// Parameters:
//   - fn: the fault handler, receiving a *common.DispatcherFault
//
// Returns:
//   - DispatcherBuilderOption: a function that applies the fault handler option to a dispatcher
func WithFaultHandler(fn func(error)) DispatcherBuilderOption {
	return func(d *dispatcher) {
		if fn != nil {
			d.faultHandler = fn
		}
	}
}

// WithProfiler records every finished job on p.
func WithProfiler(p *profiler.Profiler) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.profiler = p
	}
}

// WithLogger replaces the dispatcher's logger.
func WithLogger(logger log.Logger) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.logger = logger
	}
}
