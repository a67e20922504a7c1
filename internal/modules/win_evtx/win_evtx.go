// Package win_evtx provides remote Windows Event Log collection for soclog.
package win_evtx

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"soclog/internal/core"
	"soclog/internal/fault"
	"soclog/internal/parse"
	"soclog/internal/remote"
)

const (
	missingMarker = "LOG_NOT_INSTALLED"
	emptyMarker   = "NO_EVENTS"
)

//go:embed scripts/eventlog.ps1.tmpl
var eventLogScript string

var eventLogTemplate = template.Must(template.New("eventlog").Parse(eventLogScript))

// EventLog collects recent events from one Windows event log channel.
type EventLog struct {
	name          string
	label         string
	blankLabel    string
	fileName      string
	logName       string
	detectMissing bool
}

// NewSysmon returns the collector for the Sysmon operational channel.
// Hosts without Sysmon report StatusMissing instead of failing.
func NewSysmon() *EventLog {
	return &EventLog{
		name:          "sysmon",
		label:         "Sysmon",
		blankLabel:    "Sysmon",
		fileName:      "sysmon_events.json",
		logName:       "Microsoft-Windows-Sysmon/Operational",
		detectMissing: true,
	}
}

// NewSecurity returns the collector for the Security log.
func NewSecurity() *EventLog {
	return &EventLog{
		name:       "security",
		label:      "Security",
		blankLabel: "Security log",
		fileName:   "security_events.json",
		logName:    "Security",
	}
}

// Name returns the collector's identifier.
func (e *EventLog) Name() string {
	return e.name
}

// FileName returns the artifact file name.
func (e *EventLog) FileName() string {
	return e.fileName
}

// Script renders the PowerShell query for events since start.
func (e *EventLog) Script(start time.Time) (string, error) {
	var buf bytes.Buffer
	err := eventLogTemplate.Execute(&buf, map[string]any{
		"LogName":       e.logName,
		"DetectMissing": e.detectMissing,
		"MissingMarker": missingMarker,
		"EmptyMarker":   emptyMarker,
		"StartTime":     parse.PowerShellStart(start),
	})
	if err != nil {
		return "", fmt.Errorf("render %s script: %w", e.name, err)
	}
	return buf.String(), nil
}

// Collect runs the query and classifies the result. Event data is passed
// through as the JSON the host produced.
func (e *EventLog) Collect(ctx context.Context, exec remote.Executor, start time.Time) (core.Output, error) {
	script, err := e.Script(start)
	if err != nil {
		return core.Output{}, err
	}

	res, err := exec.RunPowerShell(ctx, script)
	if err != nil {
		return core.Output{}, err
	}

	if e.detectMissing && strings.Contains(res.Stdout, missingMarker) {
		return core.Output{
			Status: core.StatusMissing,
			Data:   core.Message(fmt.Sprintf("%s is not installed on this host.", e.label)),
		}, nil
	}
	if strings.Contains(res.Stdout, emptyMarker) {
		return core.Output{
			Status: core.StatusEmpty,
			Data:   core.Message(fmt.Sprintf("No %s events found for the requested time range.", e.label)),
		}, nil
	}

	if res.ExitCode != 0 && res.Stdout == "" {
		return core.Output{}, fault.New(fault.KindRemote,
			fmt.Sprintf("failed to collect %s logs: exit code %d, stderr: %s", e.label, res.ExitCode, strings.TrimSpace(res.Stderr)))
	}

	stdout := strings.TrimSpace(res.Stdout)
	if stdout == "" {
		return core.Output{
			Status: core.StatusEmpty,
			Data:   core.Message(fmt.Sprintf("%s output was empty.", e.blankLabel)),
		}, nil
	}

	return core.Output{Status: core.StatusOK, Data: core.PassThroughJSON(stdout)}, nil
}
