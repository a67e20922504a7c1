// Package win_process provides remote running-process collection for soclog.
package win_process

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"soclog/internal/core"
	"soclog/internal/fault"
	"soclog/internal/remote"
)

//go:embed scripts/processes.ps1
var processScript string

// Processes lists running processes with owner and executable SHA-256.
type Processes struct{}

// NewProcesses creates a new process-list collector.
func NewProcesses() *Processes {
	return &Processes{}
}

// Name returns the collector's identifier.
func (p *Processes) Name() string {
	return "processes"
}

// FileName returns the artifact file name.
func (p *Processes) FileName() string {
	return "processes.json"
}

// Collect runs the process query. The time window does not apply.
func (p *Processes) Collect(ctx context.Context, exec remote.Executor, _ time.Time) (core.Output, error) {
	res, err := exec.RunPowerShell(ctx, processScript)
	if err != nil {
		return core.Output{}, err
	}

	if res.ExitCode != 0 && res.Stdout == "" {
		return core.Output{}, fault.New(fault.KindRemote,
			fmt.Sprintf("failed to collect process list: exit code %d, stderr: %s", res.ExitCode, strings.TrimSpace(res.Stderr)))
	}

	stdout := strings.TrimSpace(res.Stdout)
	if stdout == "" {
		return core.Output{Status: core.StatusEmpty, Data: json.RawMessage(`{"processes":[]}`)}, nil
	}

	return core.Output{Status: core.StatusOK, Data: Normalize(stdout)}, nil
}

// Normalize shapes process output as an object with a "processes" key.
// ConvertTo-Json emits a bare object instead of an array when only one
// process is returned; that case is wrapped too.
func Normalize(stdout string) json.RawMessage {
	if !gjson.Valid(stdout) {
		return core.PassThroughJSON(stdout)
	}

	doc := gjson.Parse(stdout)
	if doc.IsObject() && doc.Get("processes").Exists() {
		return json.RawMessage(stdout)
	}

	wrapped, err := json.Marshal(map[string]json.RawMessage{"processes": json.RawMessage(stdout)})
	if err != nil {
		return core.PassThroughJSON(stdout)
	}
	return wrapped
}
