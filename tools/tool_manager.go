package tools

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type toolInfo struct {
	Name string
	Desc string
}

// ToolNames lists every tool this server can register, in listing order.
var ToolNames = []toolInfo{
	{"tool_manager", "Tool management"},
	{"extract_entities", "Financial entity extraction"},
	{"categorize_entity", "Keyword and hybrid entity categorization"},
	{"enhance_document", "Enhanced document markup"},
	{"build_graph", "Knowledge graph construction"},
	{"related_entities", "Graph neighbourhood lookup"},
	{"query_graph", "Graph node filtering"},
	{"fetch_document", "Web page ingestion"},
}

// EnabledFunc reports whether a tool is enabled by ENABLE_TOOLS. An empty
// ENABLE_TOOLS enables everything.
func EnabledFunc() func(string) bool {
	enableTools := strings.Split(os.Getenv("ENABLE_TOOLS"), ",")
	allToolsEnabled := len(enableTools) == 1 && enableTools[0] == ""
	return func(toolName string) bool {
		return allToolsEnabled || slices.Contains(enableTools, toolName)
	}
}

func RegisterToolManagerTool(s *server.MCPServer) {
	tool := mcp.NewTool("tool_manager",
		mcp.WithDescription("Manage MCP tools - list, enable or disable tools"),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action to perform: list, enable, disable")),
		mcp.WithString("tool_name", mcp.Description("Tool name to enable/disable")),
	)

	s.AddTool(tool, toolManagerHandler)
}

func toolManagerHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action must be a string"), nil
	}

	enableTools := os.Getenv("ENABLE_TOOLS")
	toolList := strings.Split(enableTools, ",")

	switch action {
	case "list":
		var response strings.Builder
		response.WriteString("Available tools:\n")
		allEnabled := enableTools == ""

		for _, t := range ToolNames {
			status := "disabled"
			if allEnabled || slices.Contains(toolList, t.Name) {
				status = "enabled"
			}
			fmt.Fprintf(&response, "- %s (%s) [%s]\n", t.Name, t.Desc, status)
		}
		response.WriteString("\nCurrently enabled tools:\n")
		if allEnabled {
			response.WriteString("All tools are enabled (ENABLE_TOOLS is empty)\n")
		} else {
			for _, name := range toolList {
				if name != "" {
					fmt.Fprintf(&response, "- %s\n", name)
				}
			}
		}
		return mcp.NewToolResultText(response.String()), nil

	case "enable", "disable":
		toolName := request.GetString("tool_name", "")
		if toolName == "" {
			return mcp.NewToolResultError("tool_name is required for enable/disable actions"), nil
		}
		if !knownTool(toolName) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}

		if enableTools == "" {
			toolList = []string{}
		}

		if action == "enable" {
			if !slices.Contains(toolList, toolName) {
				toolList = append(toolList, toolName)
			}
		} else {
			toolList = slices.DeleteFunc(toolList, func(s string) bool { return s == toolName })
		}

		os.Setenv("ENABLE_TOOLS", strings.Join(toolList, ","))

		return mcp.NewToolResultText(fmt.Sprintf("Successfully %sd tool: %s (takes effect on restart)", action, toolName)), nil

	default:
		return mcp.NewToolResultError("Invalid action. Use 'list', 'enable', or 'disable'"), nil
	}
}

func knownTool(name string) bool {
	return slices.ContainsFunc(ToolNames, func(t toolInfo) bool { return t.Name == name })
}
