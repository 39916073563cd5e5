package scanner

import "iter"

// PortsFor yields the residue class owned by the worker with the given offset:
// offset+1, offset+1+stride, ... up to MaxPort. Offsets 0..stride-1 together
// cover 1..MaxPort exactly once. An offset outside [0, stride) yields nothing.
func PortsFor(offset, stride uint16) iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		if stride == 0 || offset >= stride {
			return
		}
		port := offset + 1
		for {
			if !yield(port) {
				return
			}
			// Written as a difference so port+stride never wraps past MaxPort.
			if MaxPort-port < stride {
				return
			}
			port += stride
		}
	}
}
