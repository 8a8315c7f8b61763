package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
)

const exportFileLayout = "20060102_150405"

type exportRecord struct {
	Timestamp     string   `json:"timestamp"`
	CPUPercent    float64  `json:"cpu_percent"`
	CPUFreq       float64  `json:"cpu_freq"`
	MemoryPercent float64  `json:"memory_percent"`
	MemoryUsedGB  float64  `json:"memory_used_gb"`
	MemoryTotalGB float64  `json:"memory_total_gb"`
	Temperature   *float64 `json:"temperature"`
}

type exportDocument struct {
	ExportTime   string         `json:"export_time"`
	TotalSamples int            `json:"total_samples"`
	Metrics      []exportRecord `json:"metrics"`
}

// WriteExport serialises samples as an export document stamped with at.
func WriteExport(w io.Writer, samples []Sample, at time.Time) error {
	doc := exportDocument{
		ExportTime:   at.Format(time.RFC3339Nano),
		TotalSamples: len(samples),
		Metrics:      make([]exportRecord, 0, len(samples)),
	}
	for _, s := range samples {
		doc.Metrics = append(doc.Metrics, exportRecord{
			Timestamp:     s.Timestamp.Format(time.RFC3339Nano),
			CPUPercent:    s.CPUPercent,
			CPUFreq:       s.CPUFreqMHz,
			MemoryPercent: s.MemPercent,
			MemoryUsedGB:  s.MemUsedGB,
			MemoryTotalGB: s.MemTotalGB,
			Temperature:   s.TemperatureC,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	return nil
}

// Export writes the current history.
func (s *Sampler) Export(w io.Writer) error {
	return WriteExport(w, s.history.Snapshot(), s.now())
}

// ExportFile writes the history to cpu_metrics_<timestamp>.json in dir and
// returns the file path.
func (s *Sampler) ExportFile(dir string) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.Wrap(ErrExportFailed, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cpu_metrics_%s.json", s.now().Format(exportFileLayout)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return "", errFactory.Wrap(ErrExportFailed, err)
	}

	if err := s.Export(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errFactory.Wrap(ErrExportFailed, err)
	}
	return path, nil
}
