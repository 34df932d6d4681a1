package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/tilecache/internal/keys"
	"github.com/leonardcser/tilecache/internal/repository"
)

// PartitionsGetHandler returns the MCP tool handler for the "partitions-get" tool.
func PartitionsGetHandler(parts *repository.PartitionsRepository, data *repository.DataRepository) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		layer, err := req.RequireString("layer")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		list, err := parts.GetPartitions(ctx, layer, versionArg(req), splitList(req.GetString("partitions", "")))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatPartitions(layer, list, data)), nil
	}
}

// LayerProtectHandler returns the MCP tool handler for the "layer-protect" tool.
func LayerProtectHandler(data *repository.DataRepository) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		layer, err := req.RequireString("layer")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if handles := splitList(req.GetString("handles", "")); len(handles) > 0 {
			if err := data.ProtectHandles(layer, handles); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Protected %d data handle(s) of layer %s.", len(handles), layer)), nil
		}
		if err := data.ProtectLayer(layer); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Protected layer %s.", layer)), nil
	}
}

// LayerReleaseHandler returns the MCP tool handler for the "layer-release" tool.
func LayerReleaseHandler(data *repository.DataRepository) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		layer, err := req.RequireString("layer")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var released bool
		if handles := splitList(req.GetString("handles", "")); len(handles) > 0 {
			released, err = data.ReleaseHandles(layer, handles)
		} else {
			released, err = data.ReleaseLayer(layer)
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !released {
			return mcp.NewToolResultText("Nothing released: no stored protection matches exactly."), nil
		}
		return mcp.NewToolResultText("Released."), nil
	}
}

// LayerClearHandler returns the MCP tool handler for the "layer-clear" tool.
func LayerClearHandler(parts *repository.PartitionsRepository) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		layer, err := req.RequireString("layer")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ids := splitList(req.GetString("partitions", ""))
		if err := parts.ClearPartitions(layer, versionArg(req), ids); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(ids) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("Cleared layer %s.", layer)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Cleared %d partition(s) of layer %s.", len(ids), layer)), nil
	}
}

// versionArg reads the optional "version" argument; negative means latest.
func versionArg(req mcp.CallToolRequest) *int64 {
	if v := req.GetInt("version", -1); v >= 0 {
		return keys.Version(int64(v))
	}
	return nil
}

func formatPartitions(layer string, list []repository.Partition, data *repository.DataRepository) string {
	if len(list) == 0 {
		return "No partitions."
	}
	var sb strings.Builder
	for i, p := range list {
		cached := ""
		if p.DataHandle != "" && data.IsCached(layer, p.DataHandle) {
			cached = " (cached)"
		}
		sb.WriteString(fmt.Sprintf("%s\t%s%s", p.Partition, p.DataHandle, cached))
		if i < len(list)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
