package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "qwen/qwen3-32b"
)

// GroqEndpoint talks to the Groq API, which is OpenAI chat-completion
// shaped. It supports both blocking and streaming generation.
type GroqEndpoint struct {
	client *openai.Client
	model  string
}

// NewGroqEndpoint creates a Groq endpoint. It requires the GROQ_API_KEY
// environment variable; GROQ_BASE_URL overrides the API endpoint, which is
// useful for testing.
func NewGroqEndpoint(modelName string) (*GroqEndpoint, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GROQ_API_KEY environment variable not set")
	}

	baseURL := os.Getenv("GROQ_BASE_URL")
	if baseURL == "" {
		baseURL = groqBaseURL
	}

	c := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)

	if modelName == "" {
		modelName = defaultGroqModel
	}
	// The client value must be referenced, not copied.
	return &GroqEndpoint{client: &c, model: modelName}, nil
}

// Generate sends a blocking chat request and converts the reply into the
// generic two-variant result.
func (g *GroqEndpoint) Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error) {
	params := g.buildParams(history, descriptors, systemPrompt)

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	return processGroqResponse(resp)
}

// GenerateStream sends a streaming chat request. The returned stream yields
// incremental text and partial tool-call fragments; it is finite and cannot
// be restarted.
func (g *GroqEndpoint) GenerateStream(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (Stream, error) {
	params := g.buildParams(history, descriptors, systemPrompt)
	inner := g.client.Chat.Completions.NewStreaming(ctx, params)
	return &groqStream{inner: inner}, nil
}

func (g *GroqEndpoint) buildParams(history []Turn, descriptors []tools.Descriptor, systemPrompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: convertTurnsToGroqMessages(history, systemPrompt),
	}
	if len(descriptors) > 0 {
		params.Tools = convertDescriptorsToGroqTools(descriptors)
	}
	return params
}

// groqStream adapts the OpenAI SSE stream to the generic chunk shape.
type groqStream struct {
	inner   *ssestream.Stream[openai.ChatCompletionChunk]
	current Chunk
}

func (s *groqStream) Next() bool {
	if !s.inner.Next() {
		return false
	}
	raw := s.inner.Current()

	var chunk Chunk
	if len(raw.Choices) > 0 {
		delta := raw.Choices[0].Delta
		chunk.Text = delta.Content
		for _, tc := range delta.ToolCalls {
			chunk.Tools = append(chunk.Tools, ToolCallDelta{
				Index: int(tc.Index),
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Args:  tc.Function.Arguments,
			})
		}
	}
	s.current = chunk
	return true
}

func (s *groqStream) Current() Chunk { return s.current }

func (s *groqStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return &errors.TransportError{Err: err}
	}
	return nil
}

func (s *groqStream) Close() error { return s.inner.Close() }

// processGroqResponse converts a chat completion into the generic reply.
func processGroqResponse(resp *openai.ChatCompletion) (*Reply, error) {
	if len(resp.Choices) == 0 {
		return &Reply{}, nil
	}
	choice := resp.Choices[0].Message

	if len(choice.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			var args map[string]interface{}
			// Arguments arrive as a JSON string holding a flat argument map.
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call arguments for '%s'", tc.Function.Name)
			}
			calls = append(calls, ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
		return &Reply{Text: choice.Content, Calls: calls}, nil
	}

	return &Reply{Text: choice.Content}, nil
}

// convertTurnsToGroqMessages translates the generic history into the OpenAI
// message shape, placing the system prompt first.
func convertTurnsToGroqMessages(history []Turn, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}

	for _, turn := range history {
		switch t := turn.(type) {
		case UserTurn:
			messages = append(messages, openai.UserMessage(t.Text))
		case ModelTextTurn:
			messages = append(messages, openai.AssistantMessage(t.Text))
		case ModelToolCallTurn:
			assistant := openai.ChatCompletionMessage{Role: "assistant"}
			for _, call := range t.Calls {
				argsBytes, err := json.Marshal(call.Args)
				if err != nil {
					fmt.Printf("Warning: could not marshal tool call arguments for %s: %v. Skipping call in history.\n", call.Name, err)
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      call.Name,
						Arguments: string(argsBytes),
					},
				})
			}
			messages = append(messages, assistant.ToParam())
		case ToolResultTurn:
			content, err := json.Marshal(t.Result.Body())
			if err != nil {
				content = []byte(fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, err))
			}
			messages = append(messages, openai.ToolMessage(string(content), t.CallID))
		}
	}
	return messages
}

// convertDescriptorsToGroqTools wraps every descriptor in an individual
// type:"function" envelope, as the OpenAI-style API requires.
func convertDescriptorsToGroqTools(descriptors []tools.Descriptor) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  schemaToFunctionParameters(d.Parameters),
		}))
	}
	return out
}

// schemaToFunctionParameters converts the registry schema into the loose
// map the OpenAI SDK expects, via a JSON round-trip.
func schemaToFunctionParameters(s *tools.Schema) openai.FunctionParameters {
	empty := openai.FunctionParameters{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	if s == nil {
		return empty
	}
	data, err := json.Marshal(s)
	if err != nil {
		return empty
	}
	var params map[string]interface{}
	if err := json.Unmarshal(data, &params); err != nil {
		return empty
	}
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]interface{}{}
	}
	return openai.FunctionParameters(params)
}
