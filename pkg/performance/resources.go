// Package performance samples process resource usage for strata tools.
package performance

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor reports what the current process has consumed since it
// was created. Each Usage call also folds the sample into running peaks.
type ResourceMonitor struct {
	proc    *process.Process
	started time.Time
	baseCPU float64

	mu       sync.Mutex
	peakRSS  uint64
	peakHeap uint64
}

// NewResourceMonitor creates a resource monitor. CPU usage is measured from
// this call.
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process: %w", err)
	}
	rm := &ResourceMonitor{proc: proc, started: time.Now()}
	if t, err := proc.Times(); err == nil {
		rm.baseCPU = t.User + t.System
	}
	return rm, nil
}

// ResourceUsage is one sample. Fields the platform cannot report are zero.
type ResourceUsage struct {
	Elapsed    time.Duration
	CPUSeconds float64
	CPUPercent float64

	// Mapped file pages count towards RSS once touched.
	RSS      uint64
	PeakRSS  uint64
	VMS      uint64
	Heap     uint64
	PeakHeap uint64

	MemUsedPercent float64 // system wide
	MemAvailable   uint64  // system wide

	Goroutines int
	Threads    int32
	OpenFiles  int32
}

// Usage samples the process now.
func (rm *ResourceMonitor) Usage() ResourceUsage {
	u := ResourceUsage{Elapsed: time.Since(rm.started)}

	if t, err := rm.proc.Times(); err == nil {
		u.CPUSeconds = t.User + t.System - rm.baseCPU
		if secs := u.Elapsed.Seconds(); secs > 0 {
			u.CPUPercent = u.CPUSeconds / secs * 100
		}
	}
	if mi, err := rm.proc.MemoryInfo(); err == nil {
		u.RSS, u.VMS = mi.RSS, mi.VMS
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		u.MemUsedPercent, u.MemAvailable = vm.UsedPercent, vm.Available
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	u.Heap = ms.HeapAlloc
	u.Goroutines = runtime.NumGoroutine()
	u.Threads, _ = rm.proc.NumThreads()
	u.OpenFiles, _ = rm.proc.NumFDs()

	rm.mu.Lock()
	rm.peakRSS = max(rm.peakRSS, u.RSS)
	rm.peakHeap = max(rm.peakHeap, u.Heap)
	u.PeakRSS, u.PeakHeap = rm.peakRSS, rm.peakHeap
	rm.mu.Unlock()

	return u
}

// String formats the sample as space separated key=value pairs.
func (u ResourceUsage) String() string {
	return fmt.Sprintf("elapsed=%s cpu=%.3fs rss=%d peak_rss=%d heap=%d peak_heap=%d fds=%d",
		u.Elapsed.Round(time.Microsecond), u.CPUSeconds, u.RSS, u.PeakRSS, u.Heap, u.PeakHeap, u.OpenFiles)
}
