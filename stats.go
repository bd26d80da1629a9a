package ringhost

import (
	"runtime"
	"time"
)

// NodeStats is one member's performance sample for a collection round.
type NodeStats struct {
	MemberID MemberID
	// UplinkMbps is the estimated uplink bandwidth in megabits per second.
	UplinkMbps float64
	// RTTMillis is the measured round-trip time to the round initiator.
	RTTMillis float64
	// CPUHeadroomPct is the fraction of CPU capacity still available,
	// in [0, 1].
	CPUHeadroomPct float64
	// MemHeadroomMB is the available memory in megabytes.
	MemHeadroomMB float64
	SampledAt     time.Time
}

// StatsSampler samples local performance indicators. Sampling must be
// synchronous, non-blocking beyond local instrumentation reads, and must
// never fail: a metrics gap must not block a round, so unavailable metrics
// are reported as best-effort zeros.
type StatsSampler interface {
	SampleLocalStats() NodeStats
}

// SamplerFunc adapts a function to the StatsSampler interface.
type SamplerFunc func() NodeStats

func (f SamplerFunc) SampleLocalStats() NodeStats {
	return f()
}

// localSampler is the default best-effort sampler. It only has visibility
// of process-local indicators; applications with real bandwidth and rtt
// probes should plug their own sampler via WithSampler.
type localSampler struct {
	clock Clock
}

func (s localSampler) SampleLocalStats() NodeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	headroomMB := float64(ms.HeapSys-ms.HeapInuse) / (1 << 20)

	// Without an OS load probe, approximate cpu headroom from goroutine
	// pressure relative to available cores.
	cores := runtime.GOMAXPROCS(0)
	load := float64(runtime.NumGoroutine()) / float64(cores*64)
	if load > 1 {
		load = 1
	}

	return NodeStats{
		CPUHeadroomPct: 1 - load,
		MemHeadroomMB:  headroomMB,
		SampledAt:      s.clock.Now(),
	}
}
