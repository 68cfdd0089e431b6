package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
)

// countingRenderer records how many renders overlap.
type countingRenderer struct {
	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32

	delay time.Duration
	gate  chan struct{}
	fail  func(req renderer.Request) error
}

func (r *countingRenderer) Render(ctx context.Context, req renderer.Request) (*image.RGBA, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	r.calls.Add(1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if r.gate != nil {
		<-r.gate
	}
	time.Sleep(r.delay)

	if r.fail != nil {
		if err := r.fail(req); err != nil {
			return nil, err
		}
	}
	return image.NewRGBA(image.Rect(0, 0, int(req.Width), int(req.Height))), nil
}

type renderFunc func(ctx context.Context, req renderer.Request) (*image.RGBA, error)

func (f renderFunc) Render(ctx context.Context, req renderer.Request) (*image.RGBA, error) {
	return f(ctx, req)
}

func job(width, height uint32) RenderJob {
	return NewRenderJob(renderer.Request{Model: "scene.glb", Width: width, Height: height})
}

func TestRendersOneAtATime(t *testing.T) {
	r := &countingRenderer{delay: 2 * time.Millisecond}
	d := NewDispatcher(r)
	d.Start()
	defer d.Close()

	const producers = 25
	var wg sync.WaitGroup
	errs := make(chan error, producers)
	for i := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := d.Render(context.Background(), job(uint32(i+1), 1))
			if err != nil {
				errs <- err
				return
			}
			if img.Bounds().Dx() != i+1 {
				errs <- fmt.Errorf("producer %d got image of width %d", i, img.Bounds().Dx())
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := r.calls.Load(); got != producers {
		t.Errorf("renders = %d, want %d", got, producers)
	}
	if got := r.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent renders = %d, want 1", got)
	}
}

func TestSecondSubmissionWaitsForResultObservation(t *testing.T) {
	r := &countingRenderer{gate: make(chan struct{})}
	d := NewDispatcher(r)
	d.Start()
	defer d.Close()

	first, err := d.Submit(context.Background(), job(512, 512))
	if err != nil {
		t.Fatal(err)
	}

	admitted := make(chan Handle, 1)
	go func() {
		h, err := d.Submit(context.Background(), job(512, 512))
		if err != nil {
			t.Error(err)
			close(admitted)
			return
		}
		admitted <- h
	}()

	close(r.gate)
	<-first.Done()
	if first.State() != StateCompleted {
		t.Fatalf("first job state %v", first.State())
	}

	// The first render is finished but its result is not observed yet.
	select {
	case <-admitted:
		t.Fatal("second job admitted before the first result was observed")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := first.Wait(); err != nil {
		t.Fatal(err)
	}

	select {
	case second := <-admitted:
		if second == nil {
			t.FailNow()
		}
		if _, err := second.Wait(); err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second job never admitted")
	}

	if got := r.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent renders = %d, want 1", got)
	}
}

func TestEveryJobResolvedOnce(t *testing.T) {
	errOdd := errors.New("odd width")
	r := &countingRenderer{
		fail: func(req renderer.Request) error {
			if req.Width%2 == 1 {
				return errOdd
			}
			return nil
		},
	}
	p := profiler.NewProfiler(time.Hour)
	d := NewDispatcher(r, WithProfiler(p))
	d.Start()
	defer d.Close()

	const jobs = 10
	for i := range jobs {
		h, err := d.Submit(context.Background(), job(uint32(i+1), 1))
		if err != nil {
			t.Fatal(err)
		}

		img, err := h.Wait()
		if (i+1)%2 == 1 {
			var failure *common.RenderFailure
			if !errors.As(err, &failure) || !errors.Is(err, errOdd) {
				t.Errorf("job %d: expected RenderFailure wrapping errOdd, got %v", i, err)
			}
			if img != nil || h.State() != StateFailed {
				t.Errorf("job %d: img %v state %v", i, img, h.State())
			}
		} else if err != nil || img == nil || h.State() != StateCompleted {
			t.Errorf("job %d: img %v err %v state %v", i, img, err, h.State())
		}

		// Waiting again returns the same result and must not release the permit twice.
		img2, err2 := h.Wait()
		if img2 != img || !errors.Is(err2, err) {
			t.Errorf("job %d: second Wait returned a different result", i)
		}
	}

	stats := p.Stats()
	if stats.Jobs != jobs || stats.Failures != jobs/2 {
		t.Errorf("profiler saw %d jobs, %d failures", stats.Jobs, stats.Failures)
	}
}

func TestPanicBecomesRenderFailure(t *testing.T) {
	calls := 0
	d := NewDispatcher(renderFunc(func(ctx context.Context, req renderer.Request) (*image.RGBA, error) {
		calls++
		if calls == 1 {
			panic("device lost")
		}
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}))
	d.Start()
	defer d.Close()

	_, err := d.Render(context.Background(), job(1, 1))
	var failure *common.RenderFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RenderFailure, got %v", err)
	}

	// The worker survives and serves the next job.
	if _, err := d.Render(context.Background(), job(1, 1)); err != nil {
		t.Fatal(err)
	}
}

func TestNilImageIsFailure(t *testing.T) {
	d := NewDispatcher(renderFunc(func(ctx context.Context, req renderer.Request) (*image.RGBA, error) {
		return nil, nil
	}))
	d.Start()
	defer d.Close()

	var failure *common.RenderFailure
	if _, err := d.Render(context.Background(), job(1, 1)); !errors.As(err, &failure) {
		t.Fatalf("expected RenderFailure, got %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	// Without a running worker an unbuffered queue can never accept a job.
	d := NewDispatcher(&countingRenderer{}, WithQueueCapacity(0))
	defer d.Close()

	for i := range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := d.Submit(ctx, job(1, 1))
		cancel()
		if !errors.Is(err, common.ErrQueueFull) {
			t.Fatalf("submit %d: expected ErrQueueFull, got %v", i, err)
		}
	}
}

func TestCancelledBeforeAdmission(t *testing.T) {
	r := &countingRenderer{gate: make(chan struct{})}
	d := NewDispatcher(r)
	d.Start()
	defer d.Close()

	first, err := d.Submit(context.Background(), job(1, 1))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Submit(ctx, job(1, 1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(r.gate)
	if _, err := first.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("renders = %d, want 1", got)
	}
}

func TestClose(t *testing.T) {
	t.Run("drains queued jobs", func(t *testing.T) {
		r := &countingRenderer{}
		d := NewDispatcher(r)

		h, err := d.Submit(context.Background(), job(4, 4))
		if err != nil {
			t.Fatal(err)
		}
		if h.State() != StateQueued {
			t.Errorf("state before start %v", h.State())
		}

		d.Close()
		if img, err := h.Wait(); err != nil || img == nil {
			t.Fatalf("queued job not rendered on close: %v", err)
		}
	})

	t.Run("rejects after close", func(t *testing.T) {
		d := NewDispatcher(&countingRenderer{})
		d.Start()
		d.Close()
		d.Close()

		if _, err := d.Submit(context.Background(), job(1, 1)); !errors.Is(err, common.ErrDispatcherClosed) {
			t.Fatalf("expected ErrDispatcherClosed, got %v", err)
		}
	})
}

func TestDoubleResolutionIsFault(t *testing.T) {
	var faults []error
	d := NewDispatcher(&countingRenderer{}, WithFaultHandler(func(err error) {
		faults = append(faults, err)
	})).(*dispatcher)

	h := newHandle(job(1, 1).ID)
	if err := h.resolve(nil, errors.New("first")); err != nil {
		t.Fatal(err)
	}

	d.process(queuedJob{job: job(1, 1), handle: h})

	if len(faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(faults))
	}
	var fault *common.DispatcherFault
	if !errors.As(faults[0], &fault) {
		t.Errorf("expected DispatcherFault, got %T", faults[0])
	}
	if _, err := h.Wait(); err == nil || err.Error() != "first" {
		t.Errorf("first resolution overwritten: %v", err)
	}
}

func TestDefaultFaultHandlerPanics(t *testing.T) {
	d := NewDispatcher(&countingRenderer{}).(*dispatcher)

	defer func() {
		if recover() == nil {
			t.Error("default fault handler did not panic")
		}
	}()
	d.faultHandler(&common.DispatcherFault{Reason: "test"})
}

func TestJobStateString(t *testing.T) {
	tests := []struct {
		state JobState
		want  string
	}{
		{StateSubmitted, "submitted"},
		{StateInProgress, "in progress"},
		{StateFailed, "failed"},
		{JobState(42), "JobState(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.state, got, tt.want)
		}
	}
}
