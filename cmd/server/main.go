package main

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/tilecache/internal/cache"
	"github.com/leonardcser/tilecache/internal/config"
	"github.com/leonardcser/tilecache/internal/logger"
	"github.com/leonardcser/tilecache/internal/repository"
	tools "github.com/leonardcser/tilecache/internal/tools"
)

const daemonBinary = "tilecache-cache"

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting tilecache MCP server")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		panic(err)
	}

	// Connect to cache daemon; start it if needed, then connect.
	sock := cfg.SocketPath
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	client, err := connectCache(sock)
	if err != nil {
		logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
		if startErr := startCacheDaemon(); startErr != nil {
			logger.Errorf("Failed to start cache daemon: %v", startErr)
		} else {
			logger.Infof("Cache daemon started successfully")
		}
		// wait for socket to appear
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if c2, err2 := connectCache(sock); err2 == nil {
				client = c2
				err = nil
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
		if client == nil {
			logger.Errorf("Failed to connect to cache daemon after startup attempt: %v", err)
			panic(err)
		}
	}
	logger.Infof("Successfully connected to cache daemon")

	fetcher := repository.NewFetcher()
	repo := repository.NewDataRepository(client, fetcher, cfg.Catalog, cfg.BaseURL, cfg.DefaultTTL, logger.Zap())
	partitions := repository.NewPartitionsRepository(
		repository.NewPartitionsCache(client, cfg.Catalog, cfg.DefaultTTL, logger.Zap()),
		fetcher, cfg.BaseURL)
	logger.Infof("Initialized repositories for catalog %q", cfg.Catalog)

	s := server.NewMCPServer(
		"tilecache",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolData := mcp.NewTool("data-get",
		mcp.WithDescription(multiline(
			"Returns the data blob behind a data handle of a catalog layer",
			"\nUsage notes:",
			"- Served from the local cache when present, fetched from the platform otherwise",
			"- Binary blobs are returned base64 encoded",
		)),
		mcp.WithString("layer", mcp.Required(), mcp.Description("The layer id")),
		mcp.WithString("handle", mcp.Required(), mcp.Description("The data handle")),
	)
	s.AddTool(toolData, tools.DataGetHandler(repo))
	logger.Infof("Registered data-get tool")

	toolPartitions := mcp.NewTool("partitions-get",
		mcp.WithDescription(multiline(
			"Lists the partitions of a catalog layer with their data handles",
			"\nUsage notes:",
			"- Served from the local cache when present, fetched from the platform otherwise",
			"- Handles whose data is cached locally are marked (cached)",
		)),
		mcp.WithString("layer", mcp.Required(), mcp.Description("The layer id")),
		mcp.WithString("partitions", mcp.Description("Comma separated partition ids; all when omitted")),
		mcp.WithNumber("version", mcp.Description("Catalog version; latest when omitted")),
	)
	s.AddTool(toolPartitions, tools.PartitionsGetHandler(partitions, repo))
	logger.Infof("Registered partitions-get tool")

	toolLayerProtect := mcp.NewTool("layer-protect",
		mcp.WithDescription(multiline(
			"Pins a whole layer, or some of its data handles, against expiry and eviction",
			"\nUsage notes:",
			"- Use before going offline to keep prefetched data resident",
		)),
		mcp.WithString("layer", mcp.Required(), mcp.Description("The layer id")),
		mcp.WithString("handles", mcp.Description("Comma separated data handles; the whole layer when omitted")),
	)
	s.AddTool(toolLayerProtect, tools.LayerProtectHandler(repo))
	logger.Infof("Registered layer-protect tool")

	toolLayerRelease := mcp.NewTool("layer-release",
		mcp.WithDescription("Removes pins added with layer-protect"),
		mcp.WithString("layer", mcp.Required(), mcp.Description("The layer id")),
		mcp.WithString("handles", mcp.Description("Comma separated data handles; the layer pin when omitted")),
	)
	s.AddTool(toolLayerRelease, tools.LayerReleaseHandler(repo))
	logger.Infof("Registered layer-release tool")

	toolLayerClear := mcp.NewTool("layer-clear",
		mcp.WithDescription(multiline(
			"Drops cached partitions of a layer",
			"\nUsage notes:",
			"- Without partitions, everything cached for the layer is dropped, data included",
		)),
		mcp.WithString("layer", mcp.Required(), mcp.Description("The layer id")),
		mcp.WithString("partitions", mcp.Description("Comma separated partition ids")),
		mcp.WithNumber("version", mcp.Description("Catalog version the partitions were cached under")),
	)
	s.AddTool(toolLayerClear, tools.LayerClearHandler(partitions))
	logger.Infof("Registered layer-clear tool")

	toolProtect := mcp.NewTool("cache-protect",
		mcp.WithDescription(multiline(
			"Pins cache keys or key prefixes against expiry and eviction",
			"\nUsage notes:",
			"- A prefix such as <catalog>::<layer>:: pins a whole layer",
			"- Pins last for the lifetime of the cache daemon",
		)),
		mcp.WithString("keys", mcp.Required(), mcp.Description("Comma separated keys or prefixes")),
	)
	s.AddTool(toolProtect, tools.ProtectHandler(client))
	logger.Infof("Registered cache-protect tool")

	toolRelease := mcp.NewTool("cache-release",
		mcp.WithDescription(multiline(
			"Removes pins added with cache-protect",
			"\nUsage notes:",
			"- Only pins that match a given key or prefix exactly are removed",
		)),
		mcp.WithString("keys", mcp.Required(), mcp.Description("Comma separated keys or prefixes")),
	)
	s.AddTool(toolRelease, tools.ReleaseHandler(client))
	logger.Infof("Registered cache-release tool")

	toolStats := mcp.NewTool("cache-stats",
		mcp.WithDescription("Reports hit, miss and eviction counters and tier usage of the cache"),
	)
	s.AddTool(toolStats, tools.StatsHandler(client))
	logger.Infof("Registered cache-stats tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func connectCache(sock string) (cache.KV, error) {
	// quick probe
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return cache.NewClient(sock), nil
}

func startCacheDaemon() error {
	path, err := findDaemon()
	if err != nil {
		return err
	}
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}

// findDaemon looks next to this executable, then on PATH, then in the
// working directory.
func findDaemon() (string, error) {
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return sibling, nil
		}
	}
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return path, nil
	}
	if _, err := os.Stat("./" + daemonBinary); err == nil {
		return "./" + daemonBinary, nil
	}
	return "", exec.ErrNotFound
}
