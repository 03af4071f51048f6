package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/tools"
)

const defaultBedrockModel = "anthropic.claude-sonnet-4-20250514-v1:0"

// BedrockEndpoint talks to Anthropic models hosted on AWS Bedrock.
type BedrockEndpoint struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

// NewBedrockEndpoint creates a Bedrock endpoint. It requires AWS credentials
// to be configured in the environment.
func NewBedrockEndpoint(ctx context.Context, modelID string) (*BedrockEndpoint, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	client := bedrockruntime.NewFromConfig(cfg)

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	if modelID == "" {
		modelID = defaultBedrockModel
	}
	return &BedrockEndpoint{
		client:  client,
		modelID: modelID,
		region:  region,
	}, nil
}

// Generate sends the full history to the Anthropic model via Bedrock and
// converts the reply into the generic two-variant result.
func (b *BedrockEndpoint) Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error) {
	requestBody, err := createBedrockRequest(history, descriptors, systemPrompt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	return processBedrockResponse(resp.Body)
}

// convertTurnsToBedrockMessages translates the generic history into the raw
// Anthropic-on-Bedrock message shape.
func convertTurnsToBedrockMessages(history []Turn) []map[string]interface{} {
	var messages []map[string]interface{}
	for _, turn := range history {
		switch t := turn.(type) {
		case UserTurn:
			messages = append(messages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": t.Text},
				},
			})
		case ModelTextTurn:
			messages = append(messages, map[string]interface{}{
				"role": "assistant",
				"content": []map[string]interface{}{
					{"type": "text", "text": t.Text},
				},
			})
		case ModelToolCallTurn:
			var toolUses []map[string]interface{}
			for _, call := range t.Calls {
				toolUses = append(toolUses, map[string]interface{}{
					"type":  "tool_use",
					"id":    call.ID,
					"name":  call.Name,
					"input": call.Args,
				})
			}
			messages = append(messages, map[string]interface{}{
				"role":    "assistant",
				"content": toolUses,
			})
		case ToolResultTurn:
			content, err := json.Marshal(t.Result.Body())
			if err != nil {
				content = []byte(fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, err))
			}
			messages = append(messages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": t.CallID,
						"content":     string(content),
					},
				},
			})
		}
	}
	return messages
}

// createBedrockRequest creates the request body for Anthropic models on
// Bedrock.
func createBedrockRequest(history []Turn, descriptors []tools.Descriptor, systemPrompt string) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          convertTurnsToBedrockMessages(history),
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(descriptors) > 0 {
		var toolDefs []map[string]interface{}
		for _, d := range descriptors {
			schema := d.Parameters
			if schema == nil {
				schema = &tools.Schema{Type: "object", Properties: map[string]*tools.Schema{}}
			}
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": schema,
			})
		}
		request["tools"] = toolDefs
	}
	return json.Marshal(request)
}

// processBedrockResponse converts a raw Bedrock reply into the generic
// result.
func processBedrockResponse(body []byte) (*Reply, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}

	if errMsg, ok := response["error"]; ok {
		return nil, errors.New("Bedrock API error: %v", errMsg)
	}

	content, ok := response["content"]
	if !ok {
		return &Reply{}, nil
	}
	contentArray, ok := content.([]interface{})
	if !ok {
		return nil, &MalformedReplyError{Detail: "unexpected content shape in Bedrock response"}
	}

	reply := &Reply{}
	callCounter := 0
	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch itemMap["type"] {
		case "text":
			if text, ok := itemMap["text"].(string); ok {
				reply.Text += text
			}
		case "tool_use":
			name, nameOK := itemMap["name"].(string)
			input, inputOK := itemMap["input"].(map[string]interface{})
			if !nameOK || !inputOK {
				continue
			}
			id := fmt.Sprintf("call_%d_%s", callCounter, name)
			if toolID, ok := itemMap["id"].(string); ok {
				id = toolID
			}
			reply.Calls = append(reply.Calls, ToolCall{ID: id, Name: name, Args: input})
			callCounter++
		}
	}
	return reply, nil
}
