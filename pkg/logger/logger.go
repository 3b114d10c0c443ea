package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init replaces the process logger. Mode "prod"/"production" emits JSON,
// anything else emits development console output.
func Init(mode, level string) error {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return err
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set installs an already-built zap logger. Tests use zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func fields(component string, kv map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)+1)
	out = append(out, zap.String("component", component))
	for k, v := range kv {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func DebugC(component, msg string) { get().Debug(msg, fields(component, nil)...) }
func InfoC(component, msg string)  { get().Info(msg, fields(component, nil)...) }
func WarnC(component, msg string)  { get().Warn(msg, fields(component, nil)...) }
func ErrorC(component, msg string) { get().Error(msg, fields(component, nil)...) }

func DebugCF(component, msg string, kv map[string]interface{}) {
	get().Debug(msg, fields(component, kv)...)
}

func InfoCF(component, msg string, kv map[string]interface{}) {
	get().Info(msg, fields(component, kv)...)
}

func WarnCF(component, msg string, kv map[string]interface{}) {
	get().Warn(msg, fields(component, kv)...)
}

func ErrorCF(component, msg string, kv map[string]interface{}) {
	get().Error(msg, fields(component, kv)...)
}
