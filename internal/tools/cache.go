package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/tilecache/internal/cache"
)

// ProtectHandler returns the MCP tool handler for the "cache-protect" tool.
func ProtectHandler(kv cache.KV) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := requireKeys(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if _, err := kv.Protect(list); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Protected %d key(s) or prefix(es).", len(list))), nil
	}
}

// ReleaseHandler returns the MCP tool handler for the "cache-release" tool.
func ReleaseHandler(kv cache.KV) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := requireKeys(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		released, err := kv.Release(list)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !released {
			return mcp.NewToolResultText("Nothing released: no stored protection matches exactly."), nil
		}
		return mcp.NewToolResultText("Released."), nil
	}
}

// StatsHandler returns the MCP tool handler for the "cache-stats" tool.
func StatsHandler(kv cache.KV) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, err := kv.Stats()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatStats(s)), nil
	}
}

// requireKeys reads the comma separated "keys" argument.
func requireKeys(req mcp.CallToolRequest) ([]string, error) {
	raw, err := req.RequireString("keys")
	if err != nil {
		return nil, err
	}
	out := splitList(raw)
	if len(out) == 0 {
		return nil, fmt.Errorf("keys must name at least one key or prefix")
	}
	return out, nil
}

// splitList splits a comma separated argument, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func formatStats(s cache.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "hits: %d\nmisses: %d\nhit rate: %.2f\n", s.Hits, s.Misses, s.HitRate())
	fmt.Fprintf(&sb, "evictions: %d\nexpirations: %d\n", s.Evictions, s.Expirations)
	fmt.Fprintf(&sb, "memory: %d entries, %d bytes\n", s.MemoryEntries, s.MemoryBytes)
	fmt.Fprintf(&sb, "disk: %d entries, %d bytes\n", s.DiskEntries, s.DiskBytes)
	fmt.Fprintf(&sb, "protected: %d", s.Protected)
	return sb.String()
}
