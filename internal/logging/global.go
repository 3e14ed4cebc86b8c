package logging

import "sync"

var (
	globalLogger *Logger
	globalOnce   sync.Once
	globalMu     sync.RWMutex
)

// InitGlobalLogger installs l as the process-wide logger. Safe to call once
// at startup; later calls replace the previous global under a write lock.
func InitGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the process-wide logger, lazily creating a
// sensible default (info level, console output) if InitGlobalLogger was
// never called.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalOnce.Do(func() {
		globalMu.Lock()
		defer globalMu.Unlock()
		if globalLogger == nil {
			globalLogger = NewLogger(Config{Level: "info"})
		}
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func Debug(msg string) { GetGlobalLogger().Debug(msg) }
func Info(msg string)  { GetGlobalLogger().Info(msg) }
func Warn(msg string)  { GetGlobalLogger().Warn(msg) }
func Error(msg string) { GetGlobalLogger().Error(msg) }
func Fatal(msg string) { GetGlobalLogger().Fatal(msg) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { GetGlobalLogger().Fatalf(format, args...) }

func WithFields(fields map[string]interface{}) *Logger { return GetGlobalLogger().WithFields(fields) }
func WithBatch(batchID string) *Logger                  { return GetGlobalLogger().WithBatch(batchID) }
func WithGroup(groupID string) *Logger                  { return GetGlobalLogger().WithGroup(groupID) }

// LogScanError records a per-file scan failure on the global logger.
func LogScanError(path string, category string, err error) {
	GetGlobalLogger().LogScanError(path, category, err)
}
