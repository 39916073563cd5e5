package scanner

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"portsweep/logging"
)

// PortResult is a single open port reported by a worker.
type PortResult struct {
	Port uint16 `json:"port"`
}

// ScanState names the phases a scan run moves through.
type ScanState string

const (
	StateIdle      ScanState = "idle"
	StateScanning  ScanState = "scanning"
	StateDraining  ScanState = "draining"
	StateReporting ScanState = "reporting"
	StateDone      ScanState = "done"
)

// ExecuteScan is the scan orchestrator.
// It starts one worker per configured thread, each owning the residue class
// of its offset, and collects their open ports into a sorted report. A dot is
// written to progress for every open port as it arrives; progress may be nil.
func ExecuteScan(ctx context.Context, cfg ScanConfig, prober Prober, progress io.Writer) *ScanReport {
	logger := logging.Logger().With("target", cfg.Target.String(), "workers", cfg.Workers)
	if progress == nil {
		progress = io.Discard
	}

	report := &ScanReport{
		Target:    cfg.Target.String(),
		Workers:   cfg.Workers,
		StartedAt: time.Now().UTC(),
	}
	logger.Debug("scan state", "state", StateIdle)

	var wg sync.WaitGroup
	results := make(chan PortResult, cfg.Workers)

	wg.Add(int(cfg.Workers))
	for offset := uint16(0); offset < cfg.Workers; offset++ {
		go TCPConnectWorker(ctx, offset, cfg.Workers, cfg.Target, prober, results, &wg)
	}
	logger.Debug("scan state", "state", StateScanning)

	// The channel closes once the last worker is done.
	go func() {
		wg.Wait()
		close(results)
	}()

	logger.Debug("scan state", "state", StateDraining)
	ports := make([]uint16, 0, 16)
	for result := range results {
		_, _ = io.WriteString(progress, ".")
		ports = append(ports, result.Port)
	}

	logger.Debug("scan state", "state", StateReporting, "open", len(ports))
	slices.Sort(ports)
	report.OpenPorts = ports
	report.CompletedAt = time.Now().UTC()

	logger.Debug("scan state", "state", StateDone, "duration_ms", report.Duration().Milliseconds())
	return report
}
