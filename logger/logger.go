package logger

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a simple wrapper around a zap.SugaredLogger.
type Logger = zap.SugaredLogger

// Level is the level of a log message.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
	LevelPanic = zapcore.PanicLevel
	LevelFatal = zapcore.FatalLevel
)

// ErrGlobalLoggerAlreadyInitialized is returned when SetGlobalLogger is called more than once.
var ErrGlobalLoggerAlreadyInitialized = errors.New("global logger already initialized")

var (
	level       = zap.NewAtomicLevel()
	initialized = atomic.NewBool(false)
	rootLogger  *Logger
	mu          sync.Mutex
)

// NewRootLogger creates a new root logger from the provided configuration.
func NewRootLogger(cfg Config) (*Logger, error) {
	log, _, err := newRootLogger(cfg)

	return log, err
}

func newRootLogger(cfg Config) (*Logger, zap.AtomicLevel, error) {
	var err error

	lvl := zap.NewAtomicLevel()
	if err = lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, lvl, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	stacktraceLevel := zap.NewAtomicLevelAt(LevelPanic)
	if cfg.StacktraceLevel != "" {
		if err = stacktraceLevel.UnmarshalText([]byte(cfg.StacktraceLevel)); err != nil {
			return nil, lvl, errors.Wrapf(err, "invalid stacktrace level %q", cfg.StacktraceLevel)
		}
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = DefaultCfg.Encoding
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = DefaultCfg.OutputPaths
	}

	zapCfg := zap.Config{
		Level:             lvl,
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: cfg.DisableStacktrace,
		Encoding:          encoding,
		EncoderConfig:     defaultEncoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
	}

	opts := []zap.Option{zap.AddStacktrace(stacktraceLevel)}
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}

	log, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, lvl, errors.Wrap(err, "failed to build zap logger")
	}

	return log.Sugar(), lvl, nil
}

// SetGlobalLogger sets the provided logger as the global logger.
// SetLevel has no effect on a logger that was not created by InitGlobalLogger.
func SetGlobalLogger(root *Logger) error {
	return setGlobalLogger(root, zap.NewAtomicLevel())
}

// InitGlobalLogger creates a root logger from the configuration and makes it the global logger.
func InitGlobalLogger(cfg Config) error {
	root, lvl, err := newRootLogger(cfg)
	if err != nil {
		return err
	}

	return setGlobalLogger(root, lvl)
}

func setGlobalLogger(root *Logger, lvl zap.AtomicLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized.Load() {
		return ErrGlobalLoggerAlreadyInitialized
	}

	rootLogger = root
	level = lvl
	initialized.Store(true)

	return nil
}

// NewLogger returns a new named child of the global root logger.
// It panics if the global logger was not initialized.
func NewLogger(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if !initialized.Load() {
		panic("global logger not initialized")
	}

	return rootLogger.Named(name)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return zap.NewNop().Sugar()
}

// NewExampleLogger builds a logger that writes human readable logs to stdout, used by tests and examples.
func NewExampleLogger(name string) *Logger {
	log, err := NewRootLogger(Config{
		Level:         "debug",
		DisableCaller: true,
		Encoding:      "console",
		OutputPaths:   []string{"stdout"},
	})
	if err != nil {
		panic(err)
	}

	return log.Named(name)
}

// SetLevel alters the logging level of the global logger.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()

	level.SetLevel(l)
}
