package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/athapong/fingraph/pkg/graph/processors"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxFetchBytes caps the size of a fetched page.
const maxFetchBytes = 5 << 20

func fetchDocumentTool() mcp.Tool {
	return mcp.NewTool("fetch_document",
		mcp.WithDescription("Fetch an HTML page over HTTP/HTTPS, convert it to text and return it as an enhanced document with entity tags"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The complete HTTP/HTTPS URL to fetch (e.g., https://example.com/research-note)"),
		),
	)
}

func (svc *Service) fetchDocumentHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url must be a string"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %s", err)), nil
	}
	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", resp.Status)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read response body: %s", err)), nil
	}

	doc, err := processors.NewHTMLLoader().Load(ctx, url, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to convert HTML: %v", err)), nil
	}

	entities, _ := svc.extractor.Extract(ctx, doc)
	return mcp.NewToolResultText(svc.markup.Build(doc, entities).Text), nil
}
