package api

import "portsweep/scanner"

// CreateScanRequest is the payload for starting a scan.
type CreateScanRequest struct {
	// Target is the IPv4 or IPv6 literal to scan.
	Target string `json:"target" binding:"required,ip" example:"192.0.2.10" description:"IPv4 or IPv6 address literal. Host names are not resolved."`
	// Threads is the number of workers; every port from 1 to 65535 is owned by exactly one of them.
	Threads int `json:"threads" binding:"omitempty,min=1,max=65535" example:"64" description:"Worker count between 1 and the server's configured maximum. Omit to use the server default."`
}

// ScanResponse carries the sorted result of a completed scan. The report's
// fields (target, workers, open_ports, started_at, completed_at) are inlined.
type ScanResponse struct {
	// ID identifies this scan in server logs.
	ID string `json:"id" format:"uuid" example:"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"`
	scanner.ScanReport
	// DurationMs is CompletedAt minus StartedAt in milliseconds.
	DurationMs int64 `json:"duration_ms" example:"145000"`
}

// HealthResponse reports service readiness.
type HealthResponse struct {
	Status string `json:"status" enums:"ok,unavailable" example:"ok"`
}

// ErrorResponse provides a consistent structure for API error payloads.
type ErrorResponse struct {
	// Error is a human-readable explanation of why the request failed.
	Error string `json:"error" example:"target is already being scanned"`
}

func newScanResponse(id string, report *scanner.ScanReport) ScanResponse {
	return ScanResponse{
		ID:         id,
		ScanReport: *report,
		DurationMs: report.Duration().Milliseconds(),
	}
}
