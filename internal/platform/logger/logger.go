package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base    = zap.NewNop()
	once    sync.Once
	logFile *os.File
)

// Init truncates the log file at path and routes every logger handed out by
// this package to it. The console belongs to the UI board, so nothing is
// written to stdout.
func Init(path string) error {
	var err error
	once.Do(func() {
		os.Remove(path)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(logFile),
			zapcore.DebugLevel,
		)
		base = zap.New(core, zap.AddCaller())
	})
	return err
}

func Close() error {
	_ = base.Sync()
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

func L() *zap.Logger { return base }

func Named(name string, fields ...zap.Field) *zap.Logger {
	return base.Named(name).With(fields...)
}

// ForAccount labels a logger the way the status board labels accounts.
func ForAccount(name string, accIdx int, address string) *zap.Logger {
	return Named(name, zap.Int("account", accIdx+1), zap.String("wallet", address))
}
