// Package dispatcher serializes render jobs from many concurrent producers onto a single render context.
//
// A producer first acquires the admission permit (capacity 1), then places its job on a bounded queue
// read by one worker goroutine. The permit is held until the producer observes the result through the
// job's Handle, so at most one request is in flight end to end.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/log"

	"golang.org/x/sync/semaphore"
)

// DefaultQueueCapacity is the queue capacity used when WithQueueCapacity is not given.
const DefaultQueueCapacity = 10

// Renderer is the render resource driven by the worker. renderer.RenderContext satisfies it.
type Renderer interface {
	Render(ctx context.Context, req renderer.Request) (*image.RGBA, error)
}

// queuedJob pairs a job with its handle on the queue.
type queuedJob struct {
	job    RenderJob
	handle *handle
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher struct {
	r Renderer

	permit        *semaphore.Weighted
	queue         chan queuedJob
	queueCapacity int

	// mu orders sends on queue against its close.
	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	faultHandler func(error)
	profiler     *profiler.Profiler
	logger       log.Logger
}

// Dispatcher admits render jobs one at a time and renders them on a single worker.
type Dispatcher interface {
	// Start launches the worker. Jobs submitted before Start stay queued until it runs.
	Start()

	// Submit waits for the admission permit and enqueues the job.
	//
	// The context only bounds the wait for the permit: once admitted, a job always runs to completion
	// and the permit stays held until Wait is called on the returned Handle.
	//
	// Parameters:
	//   - ctx: aborts the wait for admission
	//   - job: the job to render
	//
	// Returns:
	//   - Handle: the completion handle of the job
	//   - error: ctx.Err(), common.ErrQueueFull or common.ErrDispatcherClosed
	Submit(ctx context.Context, job RenderJob) (Handle, error)

	// Render submits the job and waits for its result.
	//
	// Parameters:
	//   - ctx: aborts the wait for admission
	//   - job: the job to render
	//
	// Returns:
	//   - *image.RGBA: the rendered image
	//   - error: a Submit error or a *common.RenderFailure
	Render(ctx context.Context, job RenderJob) (*image.RGBA, error)

	// Close stops accepting jobs, renders everything already queued and returns once the worker exits.
	Close()
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher creates a Dispatcher driving r with the options applied. Call Start to begin rendering.
//
// Parameters:
//   - r: the render resource owned by the worker
//   - options: a variadic list of DispatcherBuilderOption functions to configure the Dispatcher
//
// Returns:
//   - Dispatcher: the configured dispatcher
func NewDispatcher(r Renderer, options ...DispatcherBuilderOption) Dispatcher {
	d := &dispatcher{
		r:             r,
		permit:        semaphore.NewWeighted(1),
		queueCapacity: DefaultQueueCapacity,
		done:          make(chan struct{}),
		logger:        log.New("dispatcher"),
	}
	d.faultHandler = d.defaultFaultHandler

	for _, option := range options {
		option(d)
	}

	d.queue = make(chan queuedJob, d.queueCapacity)
	return d
}

func (d *dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

func (d *dispatcher) Submit(ctx context.Context, job RenderJob) (Handle, error) {
	if d.isClosed() {
		return nil, common.ErrDispatcherClosed
	}

	h := newHandle(job.ID)
	if err := d.permit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	h.setState(StateAdmitted)
	h.release = func() { d.permit.Release(1) }

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.permit.Release(1)
		return nil, common.ErrDispatcherClosed
	}

	h.setState(StateQueued)
	select {
	case d.queue <- queuedJob{job: job, handle: h}:
	default:
		d.permit.Release(1)
		d.logger.Warningf("job %s rejected: queue full (%d)", job.ID, d.queueCapacity)
		return nil, fmt.Errorf("job %s: %w", job.ID, common.ErrQueueFull)
	}

	d.logger.Debugf("job %s queued: model %q, %dx%d, %d textures", job.ID, job.Model, job.Width, job.Height, len(job.Textures))
	return h, nil
}

func (d *dispatcher) Render(ctx context.Context, job RenderJob) (*image.RGBA, error) {
	h, err := d.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

func (d *dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	// The worker drains the queue before exiting, even when it was never started.
	d.Start()
	<-d.done
}

func (d *dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// run is the worker loop. It is the only goroutine that calls the renderer.
func (d *dispatcher) run() {
	defer close(d.done)
	for qj := range d.queue {
		d.process(qj)
	}
	d.logger.Debug("worker stopped")
}

// process renders one job and resolves its handle.
func (d *dispatcher) process(qj queuedJob) {
	qj.handle.setState(StateInProgress)
	start := time.Now()

	img, err := d.render(qj.job)
	if err == nil && img == nil {
		err = errors.New("renderer returned no image")
	}
	if err != nil {
		var failure *common.RenderFailure
		if !errors.As(err, &failure) {
			err = &common.RenderFailure{Cause: err}
		}
		img = nil
	}

	elapsed := time.Since(start)
	if d.profiler != nil {
		d.profiler.Record(elapsed, err != nil)
	}
	if err != nil {
		d.logger.Warningf("job %s failed after %v: %v", qj.job.ID, elapsed, err)
	} else {
		d.logger.Debugf("job %s rendered in %v", qj.job.ID, elapsed)
	}

	if fault := qj.handle.resolve(img, err); fault != nil {
		d.faultHandler(fault)
	}
}

// render calls the renderer, turning a panic into an error so the worker survives it.
func (d *dispatcher) render(job RenderJob) (img *image.RGBA, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	// Admitted jobs are never cancelled.
	return d.r.Render(context.Background(), job.Request)
}

func (d *dispatcher) defaultFaultHandler(err error) {
	d.logger.Critical(err.Error())
	panic(err)
}
