// Package logstore collects high-volume operational records (API access,
// action executions, quota usage) and writes them to the database in
// debounced bulks so request paths never block on log IO.
package logstore

import "time"

// AccessRecord captures one handled API request.
type AccessRecord struct {
	InstanceID      string
	LoggedAt        time.Time
	Protocol        string
	Method          string
	URL             string
	ResponseStatus  int
	RequestedBy     string
	RequestedDomain string
}

// ExecutionRecord captures one action or webhook execution.
type ExecutionRecord struct {
	InstanceID string
	LoggedAt   time.Time
	StartedAt  time.Time
	Took       time.Duration
	Target     string
	Metadata   map[string]any
}

// QuotaRecord captures consumption of one billed unit.
type QuotaRecord struct {
	InstanceID string
	LoggedAt   time.Time
	Unit       string
	Amount     int64
}
