package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duneagent/dune/tools"
)

func TestConvertTurnsToBedrockMessages(t *testing.T) {
	messages := convertTurnsToBedrockMessages(sampleHistory())
	require.Len(t, messages, 4)

	assert.Equal(t, "user", messages[0]["role"])
	assert.Equal(t, "assistant", messages[1]["role"])

	toolUse := messages[1]["content"].([]map[string]interface{})[0]
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "call_1", toolUse["id"])
	assert.Equal(t, "ls", toolUse["name"])

	toolResult := messages[2]["content"].([]map[string]interface{})[0]
	assert.Equal(t, "user", messages[2]["role"])
	assert.Equal(t, "tool_result", toolResult["type"])
	assert.Equal(t, "call_1", toolResult["tool_use_id"])
}

func TestCreateBedrockRequest(t *testing.T) {
	descriptors := []tools.Descriptor{{
		Name:        "read_file",
		Description: "Read a file.",
		Parameters: &tools.Schema{
			Type:       "object",
			Properties: map[string]*tools.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}}

	body, err := createBedrockRequest([]Turn{UserTurn{Text: "hi"}}, descriptors, "be helpful")
	require.NoError(t, err)

	var request map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &request))

	assert.Equal(t, "bedrock-2023-05-31", request["anthropic_version"])
	assert.Equal(t, "be helpful", request["system"])

	toolDefs := request["tools"].([]interface{})
	require.Len(t, toolDefs, 1)
	def := toolDefs[0].(map[string]interface{})
	assert.Equal(t, "read_file", def["name"])
	schema := def["input_schema"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
}

func TestProcessBedrockResponseText(t *testing.T) {
	reply, err := processBedrockResponse([]byte(`{"content":[{"type":"text","text":"answer"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "answer", reply.Text)
}

func TestProcessBedrockResponseToolUse(t *testing.T) {
	reply, err := processBedrockResponse([]byte(`{"content":[
		{"type":"tool_use","id":"toolu_1","name":"ls","input":{"path":"."}}
	]}`))
	require.NoError(t, err)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "toolu_1", reply.Calls[0].ID)
	assert.Equal(t, "ls", reply.Calls[0].Name)
	assert.Equal(t, map[string]interface{}{"path": "."}, reply.Calls[0].Args)
}

func TestProcessBedrockResponseSynthesizesMissingID(t *testing.T) {
	reply, err := processBedrockResponse([]byte(`{"content":[
		{"type":"tool_use","name":"ls","input":{}}
	]}`))
	require.NoError(t, err)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "call_0_ls", reply.Calls[0].ID)
}

func TestProcessBedrockResponseAPIError(t *testing.T) {
	_, err := processBedrockResponse([]byte(`{"error":"model not found"}`))
	assert.Error(t, err)
}

func TestProcessBedrockResponseBadContentShape(t *testing.T) {
	_, err := processBedrockResponse([]byte(`{"content":"not a list"}`))
	var malformed *MalformedReplyError
	assert.ErrorAs(t, err, &malformed)
}
