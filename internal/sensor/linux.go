package sensor

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"codeberg.org/mutker/cpubench/internal/logger"
)

// Option customises a Linux provider.
type Option func(*Linux)

// WithRoots points the provider at alternative procfs and sysfs mounts.
func WithRoots(procRoot, sysRoot string) Option {
	return func(l *Linux) {
		l.procRoot = procRoot
		l.sysRoot = sysRoot
	}
}

// WithDiskPath selects the filesystem reported by SystemInfo.
func WithDiskPath(path string) Option {
	return func(l *Linux) {
		l.diskPath = path
	}
}

// WithGPU toggles the NVML GPU inventory in SystemInfo.
func WithGPU(enabled bool) Option {
	return func(l *Linux) {
		l.gpuEnabled = enabled
	}
}

// Linux reads counters from procfs and sysfs. CPU usage is the busy share
// since the previous Sample call, so the first reading after construction
// reports the share since boot.
type Linux struct {
	procRoot   string
	sysRoot    string
	diskPath   string
	gpuEnabled bool
	gpu        *nvmlInventory
	log        logger.Logger

	readCounters func(string) (cpuCounters, error)

	mu        sync.Mutex
	prev      cpuCounters
	prevCores []cpuCounters
}

func NewLinux(log logger.Logger, opts ...Option) *Linux {
	if log == nil {
		log = logger.Nop()
	}
	l := &Linux{
		procRoot:     "/proc",
		sysRoot:      "/sys",
		diskPath:     "/",
		gpuEnabled:   true,
		log:          log,
		readCounters: readCPUCounters,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.gpu = &nvmlInventory{log: log}
	return l
}

func (l *Linux) Sample(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	// Reading and swapping the baseline form one critical section.
	l.mu.Lock()
	cur, err := l.readCounters(filepath.Join(l.procRoot, "stat"))
	if err != nil {
		l.mu.Unlock()
		return Reading{}, err
	}
	usage := cpuUsage(l.prev, cur)
	l.prev = cur
	l.mu.Unlock()

	mem, err := readMemory(filepath.Join(l.procRoot, "meminfo"))
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		CPUPercent: usage,
		CPUFreqMHz: l.frequency(),
		MemPercent: mem.percent(),
		MemUsedGB:  toGB(mem.used()),
		MemTotalGB: toGB(mem.total),
	}
	if temp, ok := readTemperature(l.sysRoot); ok {
		r.TemperatureC = &temp
	}
	return r, nil
}

func (l *Linux) frequency() float64 {
	if mhz, ok := readScalingFreq(l.sysRoot); ok {
		return mhz
	}
	topo, err := readCPUInfo(filepath.Join(l.procRoot, "cpuinfo"))
	if err != nil {
		return 0
	}
	return topo.avgMHz
}

func (l *Linux) SystemInfo(ctx context.Context) (SystemInfo, error) {
	if err := ctx.Err(); err != nil {
		return SystemInfo{}, err
	}

	topo, err := readCPUInfo(filepath.Join(l.procRoot, "cpuinfo"))
	if err != nil {
		return SystemInfo{}, err
	}
	if topo.logical == 0 {
		topo.logical = runtime.NumCPU()
		topo.physical = topo.logical
	}

	mem, err := readMemory(filepath.Join(l.procRoot, "meminfo"))
	if err != nil {
		return SystemInfo{}, err
	}

	info := SystemInfo{
		CPU: CPUInfo{
			PhysicalCores:  topo.physical,
			LogicalCores:   topo.logical,
			FreqMHz:        l.frequency(),
			Model:          topo.model,
			PercentPerCore: l.perCore(),
		},
		Memory: MemoryInfo{
			TotalGB:     toGB(mem.total),
			AvailableGB: toGB(mem.available),
			UsedGB:      toGB(mem.used()),
			Percent:     mem.percent(),
		},
	}

	if disk, diskErr := readDisk(l.diskPath); diskErr == nil {
		info.Disk = disk
	} else {
		l.log.Debug().Err(diskErr).Str("path", l.diskPath).Msg("Failed to read disk usage")
	}

	if boot, bootErr := readBootTime(filepath.Join(l.procRoot, "stat")); bootErr == nil {
		info.BootTime = boot
		info.UptimeHours = time.Since(boot).Hours()
	}

	if l.gpuEnabled {
		gpus, gpuErr := l.gpu.list()
		if gpuErr != nil {
			l.log.Warn().Err(gpuErr).Msg("Failed to list GPUs")
		}
		info.GPUs = gpus
	}

	return info, nil
}

// perCore reports each core's busy share since the previous SystemInfo call,
// or since boot on the first one. Nil when /proc/stat has no per-core lines.
func (l *Linux) perCore() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := readPerCoreCounters(filepath.Join(l.procRoot, "stat"))
	if err != nil {
		l.log.Debug().Err(err).Msg("Failed to read per-core CPU counters")
		return nil
	}
	if len(cur) == 0 {
		return nil
	}
	usage := perCoreUsage(l.prevCores, cur)
	l.prevCores = cur
	return usage
}

// Close releases NVML when it was loaded.
func (l *Linux) Close() error {
	return l.gpu.shutdown()
}
