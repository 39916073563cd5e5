package scanner

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"portsweep/logging"
)

// Prober decides whether a single TCP port accepts connections.
type Prober interface {
	Probe(ctx context.Context, target netip.Addr, port uint16) bool
}

// TCPConnectProber performs a full TCP three-way handshake.
// A zero Timeout means the dial has no deadline of its own.
type TCPConnectProber struct {
	Timeout time.Duration
}

// NewTCPConnectProber returns a connect prober with the given per-dial timeout.
func NewTCPConnectProber(timeout time.Duration) *TCPConnectProber {
	return &TCPConnectProber{Timeout: timeout}
}

// Probe reports whether the handshake completed. The connection is closed
// straight away; refused, reset, unreachable and timed-out dials all report false.
func (p *TCPConnectProber) Probe(ctx context.Context, target netip.Addr, port uint16) bool {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", netip.AddrPortFrom(target, port).String())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// TCPConnectWorker scans the residue class starting at offset+1 with the given
// stride and sends every open port on results. It runs until the class is
// exhausted or ctx is cancelled.
func TCPConnectWorker(ctx context.Context, offset, stride uint16, target netip.Addr, prober Prober, results chan<- PortResult, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := logging.Logger()
	logger.Debug("worker started", "offset", offset, "stride", stride, "first_port", offset+1)

	var probed, open int
	for port := range PortsFor(offset, stride) {
		if ctx.Err() != nil {
			logger.Debug("worker cancelled", "offset", offset, "probed", probed)
			return
		}
		probed++
		if !prober.Probe(ctx, target, port) {
			continue
		}
		open++
		results <- PortResult{Port: port}
	}

	logger.Debug("worker finished", "offset", offset, "probed", probed, "open", open)
}
