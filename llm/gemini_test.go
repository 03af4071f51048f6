package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duneagent/dune/tools"
)

func TestConvertTurnsToGeminiContent(t *testing.T) {
	contents := convertTurnsToGeminiContent(sampleHistory())
	require.Len(t, contents, 4)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "function", contents[2].Role)
	assert.Equal(t, "model", contents[3].Role)

	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "ls", call.Name)

	response, ok := contents[2].Parts[0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "ls", response.Name)
}

func TestConvertDescriptorsToGeminiToolsGroupsDeclarations(t *testing.T) {
	descriptors := []tools.Descriptor{
		{Name: "a", Description: "first"},
		{Name: "b", Description: "second"},
	}
	out := convertDescriptorsToGeminiTools(descriptors)
	require.Len(t, out, 1, "all declarations share one tool wrapper")
	assert.Len(t, out[0].FunctionDeclarations, 2)

	assert.Nil(t, convertDescriptorsToGeminiTools(nil))
}

func TestConvertSchemaToGemini(t *testing.T) {
	schema := &tools.Schema{
		Type: "object",
		Properties: map[string]*tools.Schema{
			"paths": {
				Type:        "array",
				Description: "file paths",
				Items:       &tools.Schema{Type: "string"},
			},
			"limit": {Type: "integer"},
		},
		Required: []string{"paths"},
	}

	out := convertSchemaToGemini(schema)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"paths"}, out.Required)
	assert.Equal(t, genai.TypeArray, out.Properties["paths"].Type)
	assert.Equal(t, genai.TypeString, out.Properties["paths"].Items.Type)
	assert.Equal(t, genai.TypeInteger, out.Properties["limit"].Type)

	assert.Equal(t, genai.TypeObject, convertSchemaToGemini(nil).Type)
}

func TestProcessGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: "model",
				Parts: []genai.Part{
					genai.Text("calling a tool"),
					genai.FunctionCall{Name: "ls", Args: map[string]interface{}{"path": "."}},
				},
			},
		}},
	}

	reply, err := processGeminiResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "calling a tool", reply.Text)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "ls", reply.Calls[0].Name)
	assert.NotEmpty(t, reply.Calls[0].ID)
}

func TestProcessGeminiResponseEmptyCandidates(t *testing.T) {
	_, err := processGeminiResponse(&genai.GenerateContentResponse{})
	var malformed *MalformedReplyError
	assert.ErrorAs(t, err, &malformed)
}
