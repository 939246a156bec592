package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterEntityReviewPrompt(s *server.MCPServer) {
	prompt := mcp.NewPrompt("entity_review",
		mcp.WithPromptDescription("Review the entities extracted from a financial document"),
		mcp.WithArgument("document", mcp.ArgumentDescription("The document text to review"), mcp.RequiredArgument()),
		mcp.WithArgument("focus", mcp.ArgumentDescription("Optional entity type to focus on, e.g. PRICE_TARGET")),
	)
	s.AddPrompt(prompt, entityReviewHandler)
}

func entityReviewHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	document := strings.TrimSpace(request.Params.Arguments["document"])
	if document == "" {
		return nil, fmt.Errorf("document is required")
	}

	instructions := "Use the enhance_document tool on the document below, then check every entity tag: " +
		"is the name an exact span of the text, is the category right, and is any ticker, rating or price target missing? " +
		"Use categorize_entity for entities you think are miscategorized."
	if focus := strings.TrimSpace(request.Params.Arguments["focus"]); focus != "" {
		instructions += fmt.Sprintf(" Pay particular attention to %s entities.", focus)
	}

	return &mcp.GetPromptResult{
		Description: "Entity extraction review",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: instructions + "\n\n---\n" + document,
				},
			},
		},
	}, nil
}
