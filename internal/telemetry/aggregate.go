package telemetry

import "time"

// Aggregate reduces the samples whose timestamp lies in [now-window, now].
// It returns nil when no sample qualifies.
func Aggregate(samples []Sample, window time.Duration, now time.Time) *AggregateWindow {
	from := now.Add(-window)

	var (
		agg      AggregateWindow
		cpuSum   float64
		freqSum  float64
		memSum   float64
		tempSum  float64
		tempN    int
		tempPeak float64
	)
	for _, s := range samples {
		if s.Timestamp.Before(from) || s.Timestamp.After(now) {
			continue
		}
		agg.SampleCount++
		cpuSum += s.CPUPercent
		freqSum += s.CPUFreqMHz
		memSum += s.MemPercent
		agg.MaxCPUPercent = max(agg.MaxCPUPercent, s.CPUPercent)
		agg.MaxMemPercent = max(agg.MaxMemPercent, s.MemPercent)
		if s.TemperatureC != nil {
			if tempN == 0 || *s.TemperatureC > tempPeak {
				tempPeak = *s.TemperatureC
			}
			tempSum += *s.TemperatureC
			tempN++
		}
	}
	if agg.SampleCount == 0 {
		return nil
	}

	n := float64(agg.SampleCount)
	agg.DurationSeconds = window.Seconds()
	agg.AvgCPUPercent = cpuSum / n
	agg.AvgCPUFreq = freqSum / n
	agg.AvgMemPercent = memSum / n
	if tempN > 0 {
		avg := tempSum / float64(tempN)
		agg.AvgTemperature = &avg
		agg.MaxTemperature = &tempPeak
	}
	return &agg
}

// PeaksOf returns the maxima over all samples.
func PeaksOf(samples []Sample) Peaks {
	var p Peaks
	for _, s := range samples {
		p.CPUPercent = max(p.CPUPercent, s.CPUPercent)
		p.MemPercent = max(p.MemPercent, s.MemPercent)
		if s.TemperatureC != nil && (p.TemperatureC == nil || *s.TemperatureC > *p.TemperatureC) {
			t := *s.TemperatureC
			p.TemperatureC = &t
		}
	}
	return p
}
