package sensor

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
)

type cpuCounters struct {
	idle  uint64
	total uint64
}

// readCPUCounters parses the aggregate "cpu" line of /proc/stat.
func readCPUCounters(path string) (cpuCounters, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return cpuCounters{}, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		return parseCPULine(line)
	}
	if err := s.Err(); err != nil {
		return cpuCounters{}, errFactory.Wrap(ErrReadFailed, err)
	}
	return cpuCounters{}, errFactory.WithData(ErrParseFailed, "cpu aggregate line not found")
}

// readPerCoreCounters parses the "cpuN" lines of /proc/stat in core order.
func readPerCoreCounters(path string) ([]cpuCounters, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	var cores []cpuCounters
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(line, "cpu") || strings.HasPrefix(line, "cpu ") {
			continue
		}
		c, parseErr := parseCPULine(line)
		if parseErr != nil {
			return nil, parseErr
		}
		cores = append(cores, c)
	}
	if err := s.Err(); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}
	return cores, nil
}

func parseCPULine(line string) (cpuCounters, error) {
	errFactory := errors.New()

	parts := strings.Fields(line)
	if len(parts) < 5 {
		return cpuCounters{}, errFactory.WithData(ErrParseFailed, line)
	}
	var c cpuCounters
	for i, p := range parts[1:] {
		v, convErr := strconv.ParseUint(p, 10, 64)
		if convErr != nil {
			return cpuCounters{}, errFactory.Wrap(ErrParseFailed, convErr)
		}
		// idle and iowait
		if i == 3 || i == 4 {
			c.idle += v
		}
		c.total += v
	}
	return c, nil
}

// perCoreUsage pairs cur with prev by index. Cores missing from prev are
// measured since boot.
func perCoreUsage(prev, cur []cpuCounters) []float64 {
	out := make([]float64, len(cur))
	for i, c := range cur {
		var p cpuCounters
		if i < len(prev) {
			p = prev[i]
		}
		out[i] = cpuUsage(p, c)
	}
	return out
}

// cpuUsage returns the busy share between two counter snapshots in percent.
func cpuUsage(prev, cur cpuCounters) float64 {
	if cur.total <= prev.total {
		return 0
	}
	totalDelta := float64(cur.total - prev.total)
	idleDelta := 0.0
	if cur.idle > prev.idle {
		idleDelta = float64(cur.idle - prev.idle)
	}
	usage := (totalDelta - idleDelta) / totalDelta * 100
	return clampPercent(usage)
}

// readBootTime reads the btime field of /proc/stat.
func readBootTime(path string) (time.Time, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) == 2 && parts[0] == "btime" {
			sec, convErr := strconv.ParseInt(parts[1], 10, 64)
			if convErr != nil {
				return time.Time{}, errFactory.Wrap(ErrParseFailed, convErr)
			}
			return time.Unix(sec, 0), nil
		}
	}
	return time.Time{}, errFactory.WithData(ErrParseFailed, "btime not found")
}

type cpuTopology struct {
	logical  int
	physical int
	model    string
	avgMHz   float64
}

// readCPUInfo derives core counts, model name and mean clock from /proc/cpuinfo.
func readCPUInfo(path string) (cpuTopology, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return cpuTopology{}, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	var (
		topo       cpuTopology
		physicalID string
		cores      = map[string]struct{}{}
		mhzSum     float64
		mhzCount   int
	)

	s := bufio.NewScanner(f)
	for s.Scan() {
		key, value, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "processor":
			topo.logical++
		case "model name":
			if topo.model == "" {
				topo.model = value
			}
		case "physical id":
			physicalID = value
		case "core id":
			cores[physicalID+"/"+value] = struct{}{}
		case "cpu MHz":
			if v, convErr := strconv.ParseFloat(value, 64); convErr == nil {
				mhzSum += v
				mhzCount++
			}
		}
	}
	if err := s.Err(); err != nil {
		return cpuTopology{}, errFactory.Wrap(ErrReadFailed, err)
	}

	topo.physical = len(cores)
	if topo.physical == 0 {
		topo.physical = topo.logical
	}
	if mhzCount > 0 {
		topo.avgMHz = mhzSum / float64(mhzCount)
	}
	return topo, nil
}

// readScalingFreq averages scaling_cur_freq over all CPUs, in MHz.
func readScalingFreq(sysRoot string) (float64, bool) {
	paths, err := filepath.Glob(filepath.Join(sysRoot, "devices/system/cpu/cpu[0-9]*/cpufreq/scaling_cur_freq"))
	if err != nil || len(paths) == 0 {
		return 0, false
	}

	var sum float64
	var n int
	for _, p := range paths {
		raw, readErr := os.ReadFile(p)
		if readErr != nil {
			continue
		}
		khz, convErr := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if convErr != nil {
			continue
		}
		sum += khz / 1000
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
