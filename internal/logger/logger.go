package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable to configure log file path.
const envLogPath = "TILECACHE_LOG"

var (
	mu            sync.Mutex
	base          *zap.Logger
	sugar         *zap.SugaredLogger
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using TILECACHE_LOG or a default path.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "tilecache.log")
		} else {
			path = "./tilecache.log"
		}
	}
	return Init(path)
}

// Init initializes the logger to write JSON lines to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.DebugLevel)

	logFile = f
	base = zap.New(core)
	sugar = base.Sugar()
	isInitialized = true
	return nil
}

// Close flushes and closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
	base, sugar, isInitialized = nil, nil, false
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Zap returns the structured logger handed to the cache engine. Before Init it
// returns a no-op logger.
func Zap() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { Infof(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) {
	if l := get(); l != nil {
		l.Infof(format, args...)
	}
}

// Warnf logs warnings.
func Warnf(format string, args ...any) {
	if l := get(); l != nil {
		l.Warnf(format, args...)
	}
}

// Errorf logs errors.
func Errorf(format string, args ...any) {
	if l := get(); l != nil {
		l.Errorf(format, args...)
	}
}

func get() *zap.SugaredLogger {
	mu.Lock()
	initialized := sugar != nil
	mu.Unlock()
	if !initialized {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
	}
	mu.Lock()
	defer mu.Unlock()
	return sugar
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
