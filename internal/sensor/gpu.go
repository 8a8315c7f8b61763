package sensor

import (
	"sync"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlError carries an NVML return code.
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// nvmlInventory lists NVIDIA GPUs. NVML is loaded lazily and the result of
// the first attempt is remembered, so hosts without the driver pay once.
type nvmlInventory struct {
	once      sync.Once
	available bool
	mu        sync.Mutex
	log       logger.Logger
}

// init must be called with mu held.
func (g *nvmlInventory) init() {
	g.once.Do(func() {
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			g.log.Debug().Str("reason", nvml.ErrorString(ret)).Msg("NVML unavailable, skipping GPU inventory")
			return
		}
		g.available = true
	})
}

func (g *nvmlInventory) list() ([]GPUInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.init()
	if !g.available {
		return nil, nil
	}

	errFactory := errors.New()
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrReadFailed, newNVMLError(ret))
	}

	gpus := make([]GPUInfo, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			g.log.Warn().Int("index", i).Str("reason", nvml.ErrorString(ret)).Msg("Failed to get GPU handle")
			continue
		}

		info := GPUInfo{Index: i}
		if name, ret := device.GetName(); ret == nvml.SUCCESS {
			info.Name = name
		}
		if mem, ret := device.GetMemoryInfo(); ret == nvml.SUCCESS {
			info.MemoryMB = mem.Total / (1024 * 1024)
		}
		if temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
			t := float64(temp)
			info.TemperatureC = &t
		}
		gpus = append(gpus, info)
	}
	return gpus, nil
}

func (g *nvmlInventory) shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.available {
		return nil
	}
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errors.New().Wrap(errors.ErrShutdownFailed, newNVMLError(ret))
	}
	g.available = false
	return nil
}
