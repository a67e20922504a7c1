// Package schema defines the data structures for soclog's output formats.
package schema

import (
	"time"

	"soclog/internal/core"
)

// RunOutput represents the complete JSON output structure for a collect command execution.
type RunOutput struct {
	Command        string            `json:"command"`
	Version        string            `json:"version"`
	TimestampUTC   string            `json:"timestamp_utc"`
	WindowStartUTC string            `json:"window_start_utc"`
	Collectors     []string          `json:"collectors"`
	SignRequested  bool              `json:"sign_requested"`
	Hosts          []core.HostResult `json:"hosts"`
	HostsFailed    int               `json:"hosts_failed"`
}

// NewRunOutput creates a new RunOutput for a finished collection.
func NewRunOutput(version string, timestamp, windowStart time.Time, collectors []string, signRequested bool, hosts []core.HostResult) *RunOutput {
	if hosts == nil {
		hosts = []core.HostResult{}
	}
	failed := 0
	for _, h := range hosts {
		if h.Error != "" {
			failed++
		}
	}

	return &RunOutput{
		Command:        "collect",
		Version:        version,
		TimestampUTC:   timestamp.UTC().Format(time.RFC3339),
		WindowStartUTC: windowStart.UTC().Format(time.RFC3339),
		Collectors:     collectors,
		SignRequested:  signRequested,
		Hosts:          hosts,
		HostsFailed:    failed,
	}
}
