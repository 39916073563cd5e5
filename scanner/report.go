package scanner

import (
	"fmt"
	"io"
	"time"
)

// ScanReport is the sorted outcome of one scan run.
type ScanReport struct {
	Target      string    `json:"target"`
	Workers     uint16    `json:"workers"`
	OpenPorts   []uint16  `json:"open_ports"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration is the wall-clock time the scan took.
func (r *ScanReport) Duration() time.Duration {
	if r.CompletedAt.Before(r.StartedAt) {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Render writes one "PORT is open" line per open port, in ascending order.
func (r *ScanReport) Render(w io.Writer) error {
	for _, port := range r.OpenPorts {
		if _, err := fmt.Fprintf(w, "%d is open\n", port); err != nil {
			return err
		}
	}
	return nil
}
