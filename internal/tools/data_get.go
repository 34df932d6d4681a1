package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/tilecache/internal/repository"
)

// DataGetHandler returns the MCP tool handler for the "data-get" tool.
func DataGetHandler(repo *repository.DataRepository) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		layer, err := req.RequireString("layer")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		handle, err := req.RequireString("handle")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		v, err := repo.GetData(ctx, layer, handle)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatBlob(v)), nil
	}
}

// formatBlob returns text blobs as is and binary ones base64 encoded.
func formatBlob(v []byte) string {
	if utf8.Valid(v) {
		return string(v)
	}
	return fmt.Sprintf("base64 (%d bytes):\n%s", len(v), base64.StdEncoding.EncodeToString(v))
}
