package observability

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// ProcessMonitor tracks process-level resource usage (goroutines, memory,
// GC) and warns when a configured threshold is exceeded. It samples only
// when Sample is called; the worker's health loop does not create or
// sample one.
type ProcessMonitor struct {
	logger     *Logger
	thresholds ResourceThresholds
	mu         sync.RWMutex
	snapshot   ResourceSnapshot
}

// ResourceThresholds configures when ProcessMonitor logs a warning.
type ResourceThresholds struct {
	MemoryUsageBytes   int64
	GoroutineThreshold int
}

// ResourceSnapshot is a point-in-time read of process resource usage.
type ResourceSnapshot struct {
	MemoryAllocBytes int64
	GoroutineCount   int
	NumGC            uint32
	LastUpdated      time.Time
}

func DefaultResourceThresholds() ResourceThresholds {
	return ResourceThresholds{
		MemoryUsageBytes:   512 * 1024 * 1024,
		GoroutineThreshold: 1000,
	}
}

// NewProcessMonitor creates a monitor; Sample must be called explicitly
// by its owner, as the monitor runs no internal ticker.
func NewProcessMonitor(logger *Logger, thresholds ResourceThresholds) *ProcessMonitor {
	return &ProcessMonitor{logger: logger, thresholds: thresholds}
}

// Sample reads current runtime stats, stores them, and warns on breach.
func (pm *ProcessMonitor) Sample(ctx context.Context) ResourceSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := ResourceSnapshot{
		MemoryAllocBytes: int64(memStats.Alloc),
		GoroutineCount:   runtime.NumGoroutine(),
		NumGC:            memStats.NumGC,
		LastUpdated:      time.Now(),
	}

	pm.mu.Lock()
	pm.snapshot = snap
	pm.mu.Unlock()

	if snap.MemoryAllocBytes > pm.thresholds.MemoryUsageBytes {
		pm.logger.Warn(ctx, "high memory usage detected", map[string]interface{}{
			"alloc_bytes": snap.MemoryAllocBytes,
			"threshold":   pm.thresholds.MemoryUsageBytes,
		})
	}
	if snap.GoroutineCount > pm.thresholds.GoroutineThreshold {
		pm.logger.Warn(ctx, "high goroutine count detected", map[string]interface{}{
			"goroutines": snap.GoroutineCount,
			"threshold":  pm.thresholds.GoroutineThreshold,
		})
	}

	return snap
}

// Snapshot returns the last sampled reading.
func (pm *ProcessMonitor) Snapshot() ResourceSnapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.snapshot
}
