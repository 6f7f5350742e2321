package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Summary formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats lists the formats accepted by Summary.Write.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

// AgentResult is the final state of one agent's channel.
type AgentResult struct {
	Agent string `json:"agent" yaml:"agent"`
	// Count is the last observed sequence plus one: the number of samples
	// the agent had sent as of the last one received.
	Count     uint64 `json:"count" yaml:"count"`
	Received  uint64 `json:"received" yaml:"received"`
	Dropped   uint64 `json:"dropped" yaml:"dropped"`
	Anomalies uint64 `json:"anomalies" yaml:"anomalies"`
}

// Summary is the outcome of a run, in agent order.
type Summary struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Started  time.Time     `json:"started" yaml:"started"`
	Finished time.Time     `json:"finished" yaml:"finished"`
	Agents   []AgentResult `json:"agents" yaml:"agents"`
}

// Write renders the summary in the given format.
func (s *Summary) Write(w io.Writer, format string) error {
	switch format {
	case FormatText, "":
		return s.writeText(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.NewValidationError("unknown summary format").WithField("format").WithValue(format)
	}
}

func (s *Summary) writeText(w io.Writer) error {
	width := 0
	for _, a := range s.Agents {
		width = max(width, len(a.Agent))
	}
	for _, a := range s.Agents {
		_, err := fmt.Fprintf(w, "%-*s  %d  (received %d, dropped %d, anomalies %d)\n",
			width, a.Agent, a.Count, a.Received, a.Dropped, a.Anomalies)
		if err != nil {
			return err
		}
	}
	return nil
}
