// Package logging builds the process-wide structured logger: JSON to
// stderr by default, human-readable console encoding when stderr is a
// terminal and neither --plain nor --json-output was requested. Grounded
// on quarry's log/logger.go (zapcore.EncoderConfig shape, run_id context
// field), adapted from quarry's fixed-JSON encoder to a TTY-conditional
// encoder since this CLI's default mode is an interactive TUI, not piped
// JSON logs.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	RunID      string
	ForceJSON  bool // --json-output
	ForcePlain bool // --plain
	Debug      bool // CAMPERS_DEBUG=1
}

// New builds the process-wide logger for one invocation.
func New(opts Options) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		NameKey:        "logger",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if opts.ForceJSON || !isTerminal(os.Stderr) || opts.ForcePlain {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	logger := zap.New(core)
	if opts.RunID != "" {
		logger = logger.With(zap.String("run_id", opts.RunID))
	}
	return logger
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
