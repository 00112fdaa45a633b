// Package logging provides centralized logging using the zap logger.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
)

// Init initializes the package-level logger.
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}
	Set(zapLogger)
	return nil
}

// Set replaces the package-level logger. Tests use it with zaptest or observer cores.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.Sugar()
}

// L returns the sugared logger instance.
func L() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s == nil {
		// Commands that never call Init stay silent.
		return zap.NewNop().Sugar()
	}
	return s
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugw(msg string, keysAndValues ...any) { L().Debugw(msg, keysAndValues...) }

func Infow(msg string, keysAndValues ...any) { L().Infow(msg, keysAndValues...) }

func Warnw(msg string, keysAndValues ...any) { L().Warnw(msg, keysAndValues...) }

func Errorw(msg string, keysAndValues ...any) { L().Errorw(msg, keysAndValues...) }
