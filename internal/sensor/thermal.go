package sensor

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var cpuZoneHints = []string{"cpu", "x86_pkg", "core", "k10temp", "coretemp", "soc"}

// readTemperature returns the first CPU-like thermal zone reading, or the
// first valid zone when none looks like a CPU. ok is false when no zone
// yields a plausible value.
func readTemperature(sysRoot string) (float64, bool) {
	paths, err := filepath.Glob(filepath.Join(sysRoot, "class/thermal/thermal_zone*/temp"))
	if err != nil || len(paths) == 0 {
		return 0, false
	}
	sort.Strings(paths)

	var fallback float64
	found := false
	for _, p := range paths {
		temp, ok := readZone(p)
		if !ok {
			continue
		}
		if !found {
			fallback, found = temp, true
		}
		raw, readErr := os.ReadFile(filepath.Join(filepath.Dir(p), "type"))
		if readErr != nil {
			continue
		}
		zone := strings.ToLower(strings.TrimSpace(string(raw)))
		for _, hint := range cpuZoneHints {
			if strings.Contains(zone, hint) {
				return temp, true
			}
		}
	}
	return fallback, found
}

func readZone(path string) (float64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil || temp <= 0 {
		return 0, false
	}
	// Zones report millidegrees.
	if temp > 1000 {
		temp /= 1000
	}
	if temp > 200 {
		return 0, false
	}
	return temp, true
}
