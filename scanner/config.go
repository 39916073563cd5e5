package scanner

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	// MaxPort is the highest TCP port number.
	MaxPort uint16 = 65535

	// DefaultWorkers is the worker count used when none is requested.
	DefaultWorkers uint16 = 4
)

var (
	// ErrInvalidTarget indicates the scan target is not a usable IP address.
	ErrInvalidTarget = errors.New("invalid scan target")
	// ErrInvalidWorkers indicates a worker count outside 1..65535.
	ErrInvalidWorkers = errors.New("invalid worker count")
)

// ScanConfig describes one scan run. Build it with NewScanConfig.
type ScanConfig struct {
	Target  netip.Addr
	Workers uint16
	// ConnectTimeout bounds each connect attempt. Zero leaves the
	// operating system's default connect behaviour in place.
	ConnectTimeout time.Duration
}

// NewScanConfig validates the target and worker count.
func NewScanConfig(target netip.Addr, workers int) (ScanConfig, error) {
	if !target.IsValid() {
		return ScanConfig{}, fmt.Errorf("%w: address is empty", ErrInvalidTarget)
	}
	if workers < 1 || workers > int(MaxPort) {
		return ScanConfig{}, fmt.Errorf("%w: %d is outside 1-%d", ErrInvalidWorkers, workers, MaxPort)
	}
	return ScanConfig{Target: target.Unmap(), Workers: uint16(workers)}, nil
}

// WithConnectTimeout returns a copy of the config with the given per-connect deadline.
func (c ScanConfig) WithConnectTimeout(timeout time.Duration) ScanConfig {
	if timeout < 0 {
		timeout = 0
	}
	c.ConnectTimeout = timeout
	return c
}
