package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statPayload struct {
	State     string `json:"state" yaml:"state"`
	NodeCount int    `json:"node_count" yaml:"node_count"`
}

func TestPrintJSON(t *testing.T) {
	data := statPayload{State: "running", NodeCount: 3}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, `"state": "running"`)
	assert.Contains(t, got, `"node_count": 3`)
}

func TestPrintJSONArray(t *testing.T) {
	data := []statPayload{
		{State: "running", NodeCount: 1},
		{State: "shutdown", NodeCount: 2},
	}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, `"state": "running"`)
	assert.Contains(t, got, `"state": "shutdown"`)
}
