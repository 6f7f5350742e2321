package orchestrator

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/fanout/internal/errors"
)

func sampleSummary() *Summary {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Summary{
		RunID:    "run-1",
		Started:  start,
		Finished: start.Add(500 * time.Millisecond),
		Agents: []AgentResult{
			{Agent: "testing0", Count: 51, Received: 51},
			{Agent: "testing10", Count: 49, Received: 40, Dropped: 9, Anomalies: 1},
		},
	}
}

func TestSummary_WriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Write(&buf, FormatText))

	want := "testing0   51  (received 51, dropped 0, anomalies 0)\n" +
		"testing10  49  (received 40, dropped 9, anomalies 1)\n"
	assert.Equal(t, want, buf.String())
}

func TestSummary_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Write(&buf, FormatJSON))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleSummary().Agents, got.Agents)
	assert.Contains(t, buf.String(), `"run_id": "run-1"`)
}

func TestSummary_WriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Write(&buf, FormatYAML))

	var got struct {
		RunID  string `yaml:"run_id"`
		Agents []struct {
			Agent   string `yaml:"agent"`
			Count   uint64 `yaml:"count"`
			Dropped uint64 `yaml:"dropped"`
		} `yaml:"agents"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Agents, 2)
	assert.Equal(t, "testing10", got.Agents[1].Agent)
	assert.Equal(t, uint64(9), got.Agents[1].Dropped)
}

func TestSummary_WriteUnknownFormat(t *testing.T) {
	err := sampleSummary().Write(&bytes.Buffer{}, "xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
