package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"soclog/internal/remote"
)

// Status summarizes what a collector found on the host.
type Status string

const (
	// StatusOK means the query returned data.
	StatusOK Status = "ok"
	// StatusMissing means the data source does not exist on the host.
	StatusMissing Status = "missing"
	// StatusEmpty means the source exists but returned nothing for the window.
	StatusEmpty Status = "empty"
)

// Output is what a collector hands back for writing to disk.
type Output struct {
	Status Status
	Data   json.RawMessage
}

// Collector defines the interface every remote artifact query implements.
type Collector interface {
	// Name returns the collector's identifier, used in logs and reporting.
	Name() string
	// FileName is the artifact file the output is written to.
	FileName() string
	// Collect runs the query on the host for events since start.
	Collect(ctx context.Context, exec remote.Executor, start time.Time) (Output, error)
}

// PassThroughJSON returns s unchanged when it is valid JSON, otherwise it
// wraps the text as {"raw": s} so nothing the host printed is lost.
func PassThroughJSON(s string) json.RawMessage {
	if gjson.Valid(s) {
		return json.RawMessage(s)
	}
	return mustJSON(map[string]string{"raw": s})
}

// Message builds the {"message": msg} document written when a source has no data.
func Message(msg string) json.RawMessage {
	return mustJSON(map[string]string{"message": msg})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
