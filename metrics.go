package armemu

import (
	"sync/atomic"
	"time"
)

// Performance metrics for monitoring facade operations
var (
	// Operation counters
	contextCreateCount  uint64
	contextReleaseCount uint64
	mapOperations       uint64
	unmapOperations     uint64
	protectOperations   uint64
	memWrites           uint64
	memReads            uint64
	bytesWritten        uint64
	registerWrites      uint64
	registerReads       uint64
	runOperations       uint64
	svcCalls            uint64

	// Timing metrics (nanoseconds)
	totalCreateTime uint64
	totalRunTime    uint64

	// Error counters
	emulationFaults  uint64
	invalidArguments uint64
)

// Metrics provides access to process-wide facade counters
type Metrics struct {
	ContextsCreated   uint64 `json:"contexts_created"`
	ContextsReleased  uint64 `json:"contexts_released"`
	MapOperations     uint64 `json:"map_operations"`
	UnmapOperations   uint64 `json:"unmap_operations"`
	ProtectOperations uint64 `json:"protect_operations"`
	MemWrites         uint64 `json:"mem_writes"`
	MemReads          uint64 `json:"mem_reads"`
	BytesWritten      uint64 `json:"bytes_written"`
	RegisterWrites    uint64 `json:"register_writes"`
	RegisterReads     uint64 `json:"register_reads"`
	RunOperations     uint64 `json:"run_operations"`
	SVCCalls          uint64 `json:"svc_calls"`
	AvgCreateTimeNs   uint64 `json:"avg_create_time_ns"`
	AvgRunTimeNs      uint64 `json:"avg_run_time_ns"`
	EmulationFaults   uint64 `json:"emulation_faults"`
	InvalidArguments  uint64 `json:"invalid_arguments"`
}

// GetMetrics returns current metrics
func GetMetrics() Metrics {
	created := atomic.LoadUint64(&contextCreateCount)
	runOps := atomic.LoadUint64(&runOperations)

	var avgCreate, avgRun uint64
	if created > 0 {
		avgCreate = atomic.LoadUint64(&totalCreateTime) / created
	}
	if runOps > 0 {
		avgRun = atomic.LoadUint64(&totalRunTime) / runOps
	}

	return Metrics{
		ContextsCreated:   created,
		ContextsReleased:  atomic.LoadUint64(&contextReleaseCount),
		MapOperations:     atomic.LoadUint64(&mapOperations),
		UnmapOperations:   atomic.LoadUint64(&unmapOperations),
		ProtectOperations: atomic.LoadUint64(&protectOperations),
		MemWrites:         atomic.LoadUint64(&memWrites),
		MemReads:          atomic.LoadUint64(&memReads),
		BytesWritten:      atomic.LoadUint64(&bytesWritten),
		RegisterWrites:    atomic.LoadUint64(&registerWrites),
		RegisterReads:     atomic.LoadUint64(&registerReads),
		RunOperations:     runOps,
		SVCCalls:          atomic.LoadUint64(&svcCalls),
		AvgCreateTimeNs:   avgCreate,
		AvgRunTimeNs:      avgRun,
		EmulationFaults:   atomic.LoadUint64(&emulationFaults),
		InvalidArguments:  atomic.LoadUint64(&invalidArguments),
	}
}

// ResetMetrics clears all metrics
func ResetMetrics() {
	atomic.StoreUint64(&contextCreateCount, 0)
	atomic.StoreUint64(&contextReleaseCount, 0)
	atomic.StoreUint64(&mapOperations, 0)
	atomic.StoreUint64(&unmapOperations, 0)
	atomic.StoreUint64(&protectOperations, 0)
	atomic.StoreUint64(&memWrites, 0)
	atomic.StoreUint64(&memReads, 0)
	atomic.StoreUint64(&bytesWritten, 0)
	atomic.StoreUint64(&registerWrites, 0)
	atomic.StoreUint64(&registerReads, 0)
	atomic.StoreUint64(&runOperations, 0)
	atomic.StoreUint64(&svcCalls, 0)
	atomic.StoreUint64(&totalCreateTime, 0)
	atomic.StoreUint64(&totalRunTime, 0)
	atomic.StoreUint64(&emulationFaults, 0)
	atomic.StoreUint64(&invalidArguments, 0)
}

func recordContextCreate(duration time.Duration) {
	atomic.AddUint64(&contextCreateCount, 1)
	atomic.AddUint64(&totalCreateTime, uint64(duration.Nanoseconds()))
}

func recordContextRelease() {
	atomic.AddUint64(&contextReleaseCount, 1)
}

func recordMapOperation() {
	atomic.AddUint64(&mapOperations, 1)
}

func recordUnmapOperation() {
	atomic.AddUint64(&unmapOperations, 1)
}

func recordProtectOperation() {
	atomic.AddUint64(&protectOperations, 1)
}

func recordMemWrite(n int) {
	atomic.AddUint64(&memWrites, 1)
	atomic.AddUint64(&bytesWritten, uint64(n))
}

func recordMemRead() {
	atomic.AddUint64(&memReads, 1)
}

func recordRegisterWrite() {
	atomic.AddUint64(&registerWrites, 1)
}

func recordRegisterRead() {
	atomic.AddUint64(&registerReads, 1)
}

func recordRun(duration time.Duration) {
	atomic.AddUint64(&runOperations, 1)
	atomic.AddUint64(&totalRunTime, uint64(duration.Nanoseconds()))
}

func recordSVC() {
	atomic.AddUint64(&svcCalls, 1)
}

func recordEmulationFault() {
	atomic.AddUint64(&emulationFaults, 1)
}

func recordInvalidArgument() {
	atomic.AddUint64(&invalidArguments, 1)
}
