package profiler

import (
	"testing"
	"time"
)

func TestRecord(t *testing.T) {
	p := NewProfiler(time.Minute)
	start := p.lastTime
	clock := start
	p.now = func() time.Time { return clock }

	steps := []struct {
		advance time.Duration
		d       time.Duration
		failed  bool
		logged  bool
	}{
		{10 * time.Second, 100 * time.Millisecond, false, false},
		{20 * time.Second, 300 * time.Millisecond, true, false},
		{30 * time.Second, 200 * time.Millisecond, false, true},
		{time.Second, 50 * time.Millisecond, false, false},
	}
	for i, s := range steps {
		clock = clock.Add(s.advance)
		if got := p.Record(s.d, s.failed); got != s.logged {
			t.Errorf("step %d: logged = %v, want %v", i, got, s.logged)
		}
	}

	stats := p.Stats()
	if stats.Jobs != 4 || stats.Failures != 1 {
		t.Errorf("jobs/failures = %d/%d, want 4/1", stats.Jobs, stats.Failures)
	}
	if stats.TotalRenderTime != 650*time.Millisecond {
		t.Errorf("total render time %v", stats.TotalRenderTime)
	}
	if stats.MaxRenderTime != 300*time.Millisecond {
		t.Errorf("max render time %v", stats.MaxRenderTime)
	}
	if p.intervalJobs != 1 {
		t.Errorf("interval not reset after logging: %d jobs pending", p.intervalJobs)
	}
}

func TestDefaultInterval(t *testing.T) {
	if p := NewProfiler(0); p.updateInterval != time.Minute {
		t.Errorf("default interval %v", p.updateInterval)
	}
}
