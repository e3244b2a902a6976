package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/carlosprados/domino/internal/lifecycle"
)

var (
	procCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "domino", Subsystem: "process", Name: "cpu_percent", Help: "App process CPU percent"},
		[]string{"app"},
	)
	procRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "domino", Subsystem: "process", Name: "memory_rss_bytes", Help: "App process RSS bytes"},
		[]string{"app"},
	)
)

// SampleInterval is the period between process samples.
var SampleInterval = time.Second

func init() {
	prometheus.MustRegister(procCPU, procRSS)
}

// SampleProcess samples CPU and RSS of the handle's process until it exits
// or ctx is done. The app's series are removed on return.
func SampleProcess(ctx context.Context, app string, h *lifecycle.ProcessHandle) {
	defer func() {
		procCPU.DeleteLabelValues(app)
		procRSS.DeleteLabelValues(app)
	}()
	p, err := process.NewProcessWithContext(ctx, int32(h.PID))
	if err != nil {
		return
	}
	// warm-up for the CPU percent baseline
	_, _ = p.CPUPercentWithContext(ctx)
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
			return
		case <-ticker.C:
			if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
				procCPU.WithLabelValues(app).Set(cpu)
			}
			if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
				procRSS.WithLabelValues(app).Set(float64(mi.RSS))
			}
		}
	}
}

// Sampler returns a spawn hook that samples every spawned process in the
// background for as long as ctx lives.
func Sampler(ctx context.Context) func(app string, h *lifecycle.ProcessHandle) {
	return func(app string, h *lifecycle.ProcessHandle) {
		go SampleProcess(ctx, app, h)
	}
}
