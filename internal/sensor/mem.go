package sensor

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/cpubench/internal/errors"
)

type memoryCounters struct {
	total     uint64
	available uint64
}

func (m memoryCounters) used() uint64 {
	if m.available > m.total {
		return 0
	}
	return m.total - m.available
}

func (m memoryCounters) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return clampPercent(float64(m.used()) / float64(m.total) * 100)
}

// readMemory parses MemTotal and MemAvailable (falling back to MemFree)
// from /proc/meminfo.
func readMemory(path string) (memoryCounters, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return memoryCounters{}, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	vals := map[string]uint64{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSuffix(parts[0], ":")
		v, convErr := strconv.ParseUint(parts[1], 10, 64)
		if convErr != nil {
			continue
		}
		vals[key] = v * 1024
	}
	if err := s.Err(); err != nil {
		return memoryCounters{}, errFactory.Wrap(ErrReadFailed, err)
	}

	m := memoryCounters{total: vals["MemTotal"]}
	if m.total == 0 {
		return memoryCounters{}, errFactory.WithData(ErrParseFailed, "MemTotal missing")
	}
	if avail, ok := vals["MemAvailable"]; ok {
		m.available = avail
	} else {
		m.available = vals["MemFree"] + vals["Buffers"] + vals["Cached"]
	}
	return m, nil
}
