package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duneagent/dune/tools"
)

func TestConvertTurnsToAnthropicMessages(t *testing.T) {
	messages := convertTurnsToAnthropicMessages(sampleHistory())
	require.Len(t, messages, 4)

	raw, err := json.Marshal(messages)
	require.NoError(t, err)
	payload := string(raw)

	assert.Contains(t, payload, `"tool_use"`)
	assert.Contains(t, payload, `"tool_result"`)
	assert.Contains(t, payload, `"tool_use_id":"call_1"`)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, messages[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, messages[2].Role, "tool results travel as user messages")
}

func TestConvertDescriptorsToAnthropicTools(t *testing.T) {
	descriptors := []tools.Descriptor{{
		Name:        "read_file",
		Description: "Read a file.",
		Parameters: &tools.Schema{
			Type:       "object",
			Properties: map[string]*tools.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}}

	out := convertDescriptorsToAnthropicTools(descriptors)
	require.Len(t, out, 1)
	assert.Equal(t, "read_file", out[0].Name)
	assert.Equal(t, []string{"path"}, out[0].InputSchema.Required)
	assert.Contains(t, out[0].InputSchema.Properties, "path")

	assert.Nil(t, convertDescriptorsToAnthropicTools(nil))
}
