package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentscope-ai/agentscope-go/mcp"
)

// RegisterMCPTools discovers the tools an MCP server exposes and registers
// each one into the given group, proxying calls through the client. A tool
// result with isError set comes back as a tool error so the model sees it.
// Returns the registered tool names.
func RegisterMCPTools(ctx context.Context, tk *Toolkit, client *mcp.Client, group string) ([]string, error) {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	var registered []string
	for _, def := range defs {
		def := def
		fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			res, err := client.CallTool(ctx, def.Name, args)
			if err != nil {
				return nil, err
			}
			if res.IsError {
				return nil, fmt.Errorf("%s", res.Text())
			}
			return json.Marshal(res.Text())
		}

		schema := def.ToToolSchema()
		schema.Group = group
		if err := tk.Register(def.Name, fn, ToolMetadata{Schema: schema}); err != nil {
			return registered, fmt.Errorf("register mcp tool %s: %w", def.Name, err)
		}
		registered = append(registered, def.Name)
	}
	return registered, nil
}
