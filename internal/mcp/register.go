package mcp

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/clio-agent/clio/internal/tool"
)

// mcpToolAdapter satisfies tool.Tool by forwarding Execute to an MCP
// client's ExecuteTool, so a connected MCP server's tools run through the
// same registry, permission gating, and result pipeline as any built-in
// tool (spec §4.3's tool pipeline makes no distinction between a tool's
// origin).
type mcpToolAdapter struct {
	client *Client
	info   Tool
}

func (a *mcpToolAdapter) ID() string          { return a.info.Name }
func (a *mcpToolAdapter) Description() string { return a.info.Description }
func (a *mcpToolAdapter) Parameters() json.RawMessage {
	if a.info.InputSchema == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return a.info.InputSchema
}

func (a *mcpToolAdapter) Execute(ctx context.Context, input json.RawMessage, _ *tool.Context) (*tool.Result, error) {
	output, err := a.client.ExecuteTool(ctx, a.info.Name, input)
	if err != nil {
		return nil, err
	}
	return &tool.Result{Title: a.info.Name, Output: output}, nil
}

func (a *mcpToolAdapter) EinoTool() einotool.InvokableTool {
	return &mcpEinoWrapper{adapter: a}
}

// mcpEinoWrapper mirrors internal/tool's own einoToolWrapper, duplicated
// here rather than exported cross-package since Tool.EinoTool is the only
// seam the two packages share.
type mcpEinoWrapper struct {
	adapter *mcpToolAdapter
}

func (w *mcpEinoWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        w.adapter.ID(),
		Desc:        w.adapter.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(parseMCPSchemaToParams(w.adapter.Parameters())),
	}, nil
}

func (w *mcpEinoWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := w.adapter.Execute(ctx, json.RawMessage(argsJSON), nil)
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// parseMCPSchemaToParams converts an MCP tool's JSON Schema input shape to
// Eino's ParameterInfo map, the same shallow property/required translation
// internal/tool applies to its own built-in tools.
func parseMCPSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}
	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}
	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{Type: paramType, Desc: prop.Description, Required: requiredSet[name]}
	}
	return params
}

// RegisterMCPTools wraps every tool exposed by client's connected servers
// as a tool.Tool and registers it in registry, so they're dispatched
// exactly like the built-in read/write/bash tools (spec §4.3/§6: MCP
// servers extend the tool pipeline rather than bypassing it).
func RegisterMCPTools(client *Client, registry *tool.Registry) {
	for _, t := range client.Tools() {
		registry.Register(&mcpToolAdapter{client: client, info: t})
	}
}
