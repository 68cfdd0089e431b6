package dispatcher

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/google/uuid"
)

// JobState is the lifecycle position of a render job.
type JobState int32

const (
	// StateSubmitted is a job waiting for its admission permit.
	StateSubmitted JobState = iota
	// StateAdmitted is a job holding the permit, not yet queued.
	StateAdmitted
	// StateQueued is a job waiting for the worker.
	StateQueued
	// StateInProgress is a job being rendered.
	StateInProgress
	// StateCompleted is a job resolved with an image.
	StateCompleted
	// StateFailed is a job resolved with an error.
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateAdmitted:
		return "admitted"
	case StateQueued:
		return "queued"
	case StateInProgress:
		return "in progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", int32(s))
	}
}

// RenderJob is one render request with an identity used in logs.
type RenderJob struct {
	ID uuid.UUID
	renderer.Request
}

// NewRenderJob wraps req in a job with a fresh random ID.
//
// Parameters:
//   - req: the render request
//
// Returns:
//   - RenderJob: the job
func NewRenderJob(req renderer.Request) RenderJob {
	return RenderJob{ID: uuid.New(), Request: req}
}

// Handle is the completion handle of a submitted job. It is resolved exactly once by the worker.
type Handle interface {
	// ID returns the job ID.
	ID() uuid.UUID

	// State returns the job's current state.
	State() JobState

	// Done is closed once the job is resolved.
	Done() <-chan struct{}

	// Wait suspends until the job is resolved and returns its result. The first call releases the
	// admission permit held since Submit; later calls return the same result.
	//
	// Returns:
	//   - *image.RGBA: the rendered image, nil on failure
	//   - error: a *common.RenderFailure when the render failed
	Wait() (*image.RGBA, error)
}

// handle is the implementation of the Handle interface.
type handle struct {
	id    uuid.UUID
	state atomic.Int32

	done     chan struct{}
	resolved atomic.Bool
	img      *image.RGBA
	err      error

	release     func()
	releaseOnce sync.Once
}

var _ Handle = &handle{}

func newHandle(id uuid.UUID) *handle {
	h := &handle{
		id:   id,
		done: make(chan struct{}),
	}
	h.state.Store(int32(StateSubmitted))
	return h
}

func (h *handle) ID() uuid.UUID {
	return h.id
}

func (h *handle) State() JobState {
	return JobState(h.state.Load())
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Wait() (*image.RGBA, error) {
	<-h.done
	h.releaseOnce.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
	return h.img, h.err
}

func (h *handle) setState(s JobState) {
	h.state.Store(int32(s))
}

// resolve stores the result and wakes every waiter. A second call leaves the first result in place and
// reports a DispatcherFault.
func (h *handle) resolve(img *image.RGBA, err error) error {
	if !h.resolved.CompareAndSwap(false, true) {
		return &common.DispatcherFault{Reason: fmt.Sprintf("job %s resolved twice", h.id)}
	}

	h.img, h.err = img, err
	if err != nil {
		h.setState(StateFailed)
	} else {
		h.setState(StateCompleted)
	}
	close(h.done)
	return nil
}
