// Package mcp connects external Model Context Protocol servers and exposes
// their capabilities as tools the agent can invoke like any built-in.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*ServerTool
}

// NewClient starts the MCP server subprocess, initializes the session, and
// discovers the tools the server provides.
func NewClient(ctx context.Context, name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "dune", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{Name: name, cmd: cmd, conn: conn}

	listParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, listParams)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range toolList.Tools {
			client.tools = append(client.tools, &ServerTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				parameters:  convertInputSchema(t.InputSchema),
				client:      client,
			})
		}
		if toolList.NextCursor == "" {
			break
		}
		listParams.Cursor = toolList.NextCursor
	}

	return client, nil
}

// RegisterAll adds every discovered server tool to the registry under its
// qualified "<server>.<tool>" name.
func (c *Client) RegisterAll(registry *tools.Registry) {
	for _, t := range c.tools {
		registry.Register(t)
	}
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// ServerTool adapts one capability of an external MCP server to the
// tools.Tool interface.
type ServerTool struct {
	serverName  string
	toolName    string
	description string
	parameters  *tools.Schema
	client      *Client
}

// Descriptor reports the tool under its qualified name. A dot separator is
// used because some backends reject ':' in function names.
func (t *ServerTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        fmt.Sprintf("%s.%s", t.serverName, t.toolName),
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// Execute forwards the call to the MCP server and folds the reply's text
// content into a single output field.
func (t *ServerTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call MCP tool '%s.%s'", t.serverName, t.toolName)
	}

	var output string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			output += text.Text
		}
	}
	if result.IsError {
		return nil, errors.New("MCP tool '%s.%s' reported an error: %s", t.serverName, t.toolName, output)
	}
	return map[string]interface{}{"output": output}, nil
}

// convertInputSchema maps the MCP input schema onto the registry's schema
// shape. The two are structurally compatible, so a JSON round-trip keeps the
// conversion honest without walking the schema by hand.
func convertInputSchema(input any) *tools.Schema {
	fallback := &tools.Schema{Type: "object", Properties: map[string]*tools.Schema{}}
	if input == nil {
		return fallback
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fallback
	}
	var schema tools.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return fallback
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return &schema
}
