package llm

import (
	"context"
	"os"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/tools"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GeminiEndpoint talks to the Gemini API through the genai SDK using an API
// key. When no API key is configured, the OAuth Code Assist endpoint is used
// instead (see codeassist.go).
type GeminiEndpoint struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiEndpoint creates a Gemini endpoint. It requires the
// GEMINI_API_KEY environment variable to be set.
func NewGeminiEndpoint(ctx context.Context, modelName string) (*GeminiEndpoint, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &GeminiEndpoint{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Close releases the underlying API client.
func (g *GeminiEndpoint) Close() error { return g.client.Close() }

// Generate sends the full history to Gemini and converts the reply into the
// generic two-variant result.
func (g *GeminiEndpoint) Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error) {
	contents := convertTurnsToGeminiContent(history)
	if len(contents) == 0 {
		return nil, errors.New("cannot generate from an empty history")
	}

	g.model.Tools = convertDescriptorsToGeminiTools(descriptors)
	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	// The last content is the new message; everything before it is history.
	last := contents[len(contents)-1]
	chat := g.model.StartChat()
	chat.History = contents[:len(contents)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	return processGeminiResponse(resp)
}

// convertTurnsToGeminiContent translates the generic history into Gemini's
// content format, including function-call and function-response parts.
func convertTurnsToGeminiContent(history []Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range history {
		switch t := turn.(type) {
		case UserTurn:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(t.Text)},
			})
		case ModelTextTurn:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(t.Text)},
			})
		case ModelToolCallTurn:
			parts := make([]genai.Part, 0, len(t.Calls))
			for _, call := range t.Calls {
				parts = append(parts, genai.FunctionCall{
					Name: call.Name,
					Args: call.Args,
				})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case ToolResultTurn:
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     t.ToolName,
					Response: t.Result.Body(),
				}},
			})
		}
	}
	return contents
}

// convertDescriptorsToGeminiTools groups every function declaration under a
// single genai.Tool, which is how the Gemini API wraps tool schemas.
func convertDescriptorsToGeminiTools(descriptors []tools.Descriptor) []*genai.Tool {
	if len(descriptors) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(descriptors))
	for _, d := range descriptors {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  convertSchemaToGemini(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertSchemaToGemini(s *tools.Schema) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = convertSchemaToGemini(prop)
		}
	}
	if s.Items != nil {
		out.Items = convertSchemaToGemini(s.Items)
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object", "":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// processGeminiResponse converts a Gemini reply into the generic result.
// Gemini assigns no call IDs, so they are synthesized.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*Reply, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &MalformedReplyError{Detail: "empty candidate list in Gemini response"}
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			reply.Text += string(v)
		case genai.FunctionCall:
			reply.Calls = append(reply.Calls, ToolCall{
				ID:   uuid.NewString(),
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	return reply, nil
}
