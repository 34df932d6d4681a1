package main

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/leonardcser/tilecache/internal/cache"
	"github.com/leonardcser/tilecache/internal/config"
	"github.com/leonardcser/tilecache/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()
	log := logger.Zap().Named("cache-server")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		panic(err)
	}

	backend := cache.NewBoltBackend(cache.BoltOptions{})
	c := cache.New(cfg.Cache, backend, cache.WithLogger(log))
	if err := c.Open(); err != nil {
		log.Error("failed to open cache", zap.Error(err))
		panic(err)
	}
	defer c.Close()

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755)
	_ = os.Remove(cfg.SocketPath)

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		panic(err)
	}
	_ = os.Chmod(cfg.SocketPath, 0o600)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		_ = l.Close()
	}()

	log.Info("serving cache",
		zap.String("socket", cfg.SocketPath),
		zap.String("dir", cfg.Cache.DiskPath),
		zap.Uint64("max_memory", cfg.Cache.MaxMemoryBytes),
		zap.Uint64("max_disk", cfg.Cache.MaxDiskBytes),
		zap.Stringer("eviction", cfg.Cache.EvictionPolicy),
		zap.String("protected_dir", cfg.Cache.ProtectedDiskPath))
	if err := cache.Serve(l, cache.Local(c), log); err != nil {
		log.Error("serve failed", zap.Error(err))
	}
}
