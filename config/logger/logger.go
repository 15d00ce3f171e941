// Package logger provides zap logger implimentation logic.
package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	config "github.com/crabzie/workspace-fleet/config/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// atomicLevel holds the live log level, swapped on config reload
var atomicLevel = zap.NewAtomicLevel()

// Build is a build function that's responsible for setting up base logger.
// When v has a config file, logger.level is hot-reloaded on change.
func Build(config *config.Logger, v *viper.Viper) *zap.Logger {
	// Parse AtomicLevel from string
	t, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		log.Fatalf("Couldn't parse initial atomic level at logger build: %v", err)
	}
	atomicLevel.SetLevel(t.Level())

	logger := zap.New(newCore(config), buildOptions(config)...)
	zap.ReplaceGlobals(logger)

	if v != nil && v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(in fsnotify.Event) {
			if in.Op&(fsnotify.Create) == 0 {
				SetLevel(v.GetString("logger.level"))
			}
		})
		v.WatchConfig()
	}
	return logger
}

// newCore splits output: below error to stdout, error and above to stderr
func newCore(config *config.Logger) zapcore.Core {
	// create encoder
	encoder := zapcore.NewJSONEncoder(config.EncoderConfig)
	if config.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(config.EncoderConfig)
	}

	// Level filters
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return atomicLevel.Enabled(lvl) && lvl < zapcore.ErrorLevel
	})

	infoCore := zapcore.NewCore(encoder, os.Stdout, lowPriority)
	errorCore := zapcore.NewCore(encoder, os.Stderr, highPriority)

	return zapcore.NewTee(infoCore, errorCore)
}

func buildOptions(config *config.Logger) []zap.Option {
	opts := []zap.Option{zap.AddCaller()}
	if config.Development {
		opts = append(opts, zap.Development())
	}
	if !config.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return opts
}

// Level reports the current log level
func Level() zapcore.Level {
	return atomicLevel.Level()
}

// SetLevel changes logger level dynamically
func SetLevel(level string) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		zap.L().Error("Couldn't parse level", zap.Error(err))
	} else {
		zap.L().Info("Atomic level updated", zap.String("value", level))
		atomicLevel.SetLevel(l)
	}
}
