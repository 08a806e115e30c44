package logger

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	defaultEncoderConfig.TimeKey = "" // no timestamps in tests
}

func TestNewRootLogger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expectRx string
	}{
		{
			name: "console",
			cfg: Config{
				Level:    "info",
				Encoding: "console",
			},
			expectRx: `INFO\tlogger/logger_test.go:\d+\tinfo\n` +
				`WARN\tlogger/logger_test.go:\d+\twarn\n`,
		},
		{
			name: "json",
			cfg: Config{
				Level:    "info",
				Encoding: "json",
			},
			expectRx: `{"level":"INFO","caller":"logger/logger_test.go:\d+","msg":"info"}\n` +
				`{"level":"WARN","caller":"logger/logger_test.go:\d+","msg":"warn"}`,
		},
		{
			name: "debug",
			cfg: Config{
				Level: "debug",
			},
			expectRx: `DEBUG\tlogger/logger_test.go:\d+\tdebug\n` +
				`INFO\tlogger/logger_test.go:\d+\tinfo\n` +
				`WARN\tlogger/logger_test.go:\d+\twarn\n`,
		},
		{
			name: "noCaller",
			cfg: Config{
				Level:         "info",
				DisableCaller: true,
			},
			expectRx: "INFO\tinfo\n" +
				"WARN\twarn\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, err := os.CreateTemp("", "entitycache-logger-test")
			require.NoError(t, err, "Failed to create temp file.")
			defer os.Remove(temp.Name())

			tt.cfg.OutputPaths = []string{temp.Name()}

			logger, err := NewRootLogger(tt.cfg)
			require.NoError(t, err, "Unexpected error constructing logger.")

			logger.Debug("debug")
			logger.Info("info")
			logger.Warn("warn")

			assert.Regexp(t, tt.expectRx, getLogs(t, temp), "Unexpected log output.")
		})
	}
}

func TestNewRootLoggerInvalidLevel(t *testing.T) {
	_, err := NewRootLogger(Config{Level: "invalid"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	temp, err := os.CreateTemp("", "entitycache-logger-test")
	require.NoError(t, err, "Failed to create temp file.")
	defer os.Remove(temp.Name())

	cfg := DefaultCfg
	cfg.OutputPaths = []string{temp.Name()}

	// init the global logger for that temp file and de-init afterwards
	defer initGlobal(t, cfg)()

	t.Run("info", func(t *testing.T) {
		logger := NewLogger("test")
		logger.Info("info")

		logs := getLogs(t, temp)
		assert.Regexp(t, `test\tinfo\n`, logs, "Unexpected log output.")
	})

	t.Run("setLevel", func(t *testing.T) {
		logger := NewLogger("test")
		SetLevel(LevelDebug)
		logger.Debug("debug1")
		SetLevel(LevelInfo)
		logger.Debug("debug2")

		logs := getLogs(t, temp)
		assert.Regexp(t, `debug1\n`, logs, "Unexpected log output.")
		assert.NotRegexp(t, `debug2\n`, logs, "Unexpected log output.")
	})
}

func TestNewLoggerWithoutInit(t *testing.T) {
	assert.Panics(t, func() { NewLogger("test") })
}

func TestInitGlobalTwice(t *testing.T) {
	defer initGlobal(t, DefaultCfg)()

	assert.ErrorIs(t, InitGlobalLogger(DefaultCfg), ErrGlobalLoggerAlreadyInitialized)
}

func TestWrappedLogger(t *testing.T) {
	// a wrapped nil logger swallows everything
	wrapped := NewWrappedLogger(nil)
	assert.NotPanics(t, func() {
		wrapped.LogDebug("debug")
		wrapped.LogInfof("%s", "info")
		wrapped.LogWarn("warn")
		wrapped.LogErrorf("%s", "error")
	})
	assert.Same(t, wrapped, wrapped.Named("child"))
	assert.Same(t, wrapped, wrapped.With("key", "value"))
	assert.NotPanics(t, func() {
		wrapped.LogDebugw("debug", "key", 1)
		wrapped.LogErrorw("error", "key", 2)
	})

	nop := NewNopLogger()
	assert.Same(t, nop, NewWrappedLogger(nop).Logger())
	assert.NotSame(t, nop, NewWrappedLogger(nop).Named("child").Logger())
}

func initGlobal(t require.TestingT, cfg Config) func() {
	require.NoError(t, InitGlobalLogger(cfg), "Failed to init global logger.")

	// de-initialize the global logger
	return func() {
		rootLogger = nil
		level = zap.NewAtomicLevel()
		initialized.Store(false)
		mu = sync.Mutex{}
	}
}

func getLogs(t require.TestingT, file *os.File) string {
	byteContents, err := io.ReadAll(file)
	require.NoError(t, err, "Couldn't read log contents from file.")

	return string(byteContents)
}
