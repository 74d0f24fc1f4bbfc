// Package logger builds the process-wide zap logger. The first call wins;
// later calls return the same instance.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.SugaredLogger
	once     sync.Once
)

// New returns the shared sugared logger. Any env other than "production" gets
// the human-readable development encoder.
func New(env string) (*zap.SugaredLogger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
		}
		var l *zap.Logger
		l, err = cfg.Build()
		if err != nil {
			return
		}
		instance = l.Sugar()
	})
	return instance, err
}
