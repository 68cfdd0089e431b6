package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-render/log"
)

// Stats is a snapshot of the jobs recorded since the profiler was created.
type Stats struct {
	Jobs     uint64
	Failures uint64

	// TotalRenderTime is the summed duration of all recorded jobs.
	TotalRenderTime time.Duration
	// MaxRenderTime is the longest recorded job.
	MaxRenderTime time.Duration
}

// Profiler tracks render job throughput and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval. Safe for concurrent use.
type Profiler struct {
	mu sync.Mutex

	logger log.Logger

	stats Stats

	intervalJobs   int
	intervalTime   time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	now func() time.Time
}

// NewProfiler creates a new Profiler logging at most once per interval.
// An interval of zero defaults to 1 minute.
//
// Parameters:
//   - interval: the minimum time between two log lines
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Profiler{
		logger:         log.New("profiler"),
		lastTime:       time.Now(),
		updateInterval: interval,
		memStats:       runtime.MemStats{},
		now:            time.Now,
	}
}

// Record should be called once per finished render job.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: jobs/min, mean render time, failures, heap usage, allocation rate, GC count/pause times.
//
// Parameters:
//   - d: how long the job rendered
//   - failed: whether the job resolved with an error
//
// Returns:
//   - bool: true if stats were logged by this call, false otherwise
func (p *Profiler) Record(d time.Duration, failed bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Jobs++
	if failed {
		p.stats.Failures++
	}
	p.stats.TotalRenderTime += d
	p.stats.MaxRenderTime = max(p.stats.MaxRenderTime, d)
	p.intervalJobs++
	p.intervalTime += d

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	jobsPerMin := float64(p.intervalJobs) / elapsed.Minutes()
	meanMs := float64(p.intervalTime.Milliseconds()) / float64(p.intervalJobs)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Infof("jobs: %.2f/min | mean: %.1f ms | failed: %d/%d | heap: %.2f MB | alloc rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | sys: %.2f MB",
		jobsPerMin, meanMs, p.stats.Failures, p.stats.Jobs, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.intervalJobs = 0
	p.intervalTime = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Stats returns the totals recorded so far.
func (p *Profiler) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
