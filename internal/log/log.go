// Package log provides the tagged, leveled logger used throughout this
// module. It follows the shape of the teacher's internal/logging package
// (a DefaultLogger, per-component WithTag derivation, LOGLEVEL env var
// overrides) but is backed by go.uber.org/zap instead of a hand-rolled
// writer.
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envVar = "LIBP2P_LOG"

var (
	base     *zap.Logger
	baseOnce sync.Once

	tagLevels = map[string]zapcore.Level{}
)

func init() {
	for _, d := range strings.Split(os.Getenv(envVar), ",") {
		if d == "" {
			continue
		}
		kv := strings.SplitN(d, "=", 2)
		if len(kv) != 2 {
			continue
		}
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(kv[1])); err == nil {
			tagLevels[kv[0]] = lvl
		}
	}
}

func rootLogger() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
	return base
}

// Logger is a tagged, leveled logger. A zero value is not usable; obtain
// one via WithTag.
type Logger struct {
	tag   string
	sugar *zap.SugaredLogger
}

// WithTag derives a logger scoped to the given component tag, honoring any
// per-tag level override from LIBP2P_LOG (e.g. "LIBP2P_LOG=dcutr=debug").
func WithTag(tag string) *Logger {
	zl := rootLogger()
	lvl, ok := tagLevels[tag]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	zl = zl.WithOptions(zap.IncreaseLevel(lvl))
	return &Logger{tag: tag, sugar: zl.Named(tag).Sugar()}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger with structured key/value pairs attached to every
// subsequent message, mirroring zap's own With.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{tag: l.tag, sugar: l.sugar.With(kv...)}
}
