package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/tools"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicEndpoint talks to the Anthropic Messages API.
type AnthropicEndpoint struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicEndpoint creates an Anthropic endpoint. It requires the
// ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicEndpoint(modelName string) (*AnthropicEndpoint, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return &AnthropicEndpoint{client: &client, model: modelName}, nil
}

// Generate sends the full history to Anthropic and converts the reply into
// the generic two-variant result.
func (a *AnthropicEndpoint) Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  convertTurnsToAnthropicMessages(history),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	anthropicTools := convertDescriptorsToAnthropicTools(descriptors)
	params.Tools = make([]anthropic.ToolUnionParam, len(anthropicTools))
	for i := range anthropicTools {
		params.Tools[i] = anthropic.ToolUnionParam{OfTool: &anthropicTools[i]}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	return processAnthropicResponse(resp)
}

// convertTurnsToAnthropicMessages translates the generic history into
// Anthropic's message shape. Tool results travel as user messages carrying a
// tool_result block.
func convertTurnsToAnthropicMessages(history []Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, turn := range history {
		switch t := turn.(type) {
		case UserTurn:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		case ModelTextTurn:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		case ModelToolCallTurn:
			var blocks []anthropic.ContentBlockParamUnion
			for _, call := range t.Calls {
				input, err := json.Marshal(call.Args)
				if err != nil {
					fmt.Printf("Warning: could not marshal tool call arguments for %s: %v. Skipping.\n", call.Name, err)
					continue
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    call.ID,
						Name:  call.Name,
						Input: input,
					},
				})
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case ToolResultTurn:
			content, err := json.Marshal(t.Result.Body())
			if err != nil {
				content = []byte(fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, err))
			}
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: t.CallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: string(content)},
						}},
					},
				}},
			})
		}
	}
	return messages
}

// convertDescriptorsToAnthropicTools converts registry descriptors to
// Anthropic's tool format.
func convertDescriptorsToAnthropicTools(descriptors []tools.Descriptor) []anthropic.ToolParam {
	if len(descriptors) == 0 {
		return nil
	}
	out := make([]anthropic.ToolParam, 0, len(descriptors))
	for _, d := range descriptors {
		properties := map[string]interface{}{}
		var required []string
		if d.Parameters != nil {
			for name, prop := range d.Parameters.Properties {
				properties[name] = prop
			}
			required = d.Parameters.Required
		}
		out = append(out, anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		})
	}
	return out
}

// processAnthropicResponse converts an Anthropic reply into the generic
// result.
func processAnthropicResponse(resp *anthropic.Message) (*Reply, error) {
	reply := &Reply{}
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Text += c.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(c.Input, &args); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call input for '%s'", c.Name)
			}
			reply.Calls = append(reply.Calls, ToolCall{
				ID:   c.ID,
				Name: c.Name,
				Args: args,
			})
		}
	}
	return reply, nil
}
