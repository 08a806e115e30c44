package logger

// WrappedLogger is embedded by components that log through an optional logger. All methods are no-ops on a nil logger.
type WrappedLogger struct {
	logger *Logger
}

// NewWrappedLogger creates a new WrappedLogger.
func NewWrappedLogger(logger *Logger) *WrappedLogger {
	return &WrappedLogger{logger: logger}
}

// Logger returns the underlying logger.
func (l *WrappedLogger) Logger() *Logger {
	return l.logger
}

// Named returns a WrappedLogger whose logger name has the given sub-scope appended.
func (l *WrappedLogger) Named(name string) *WrappedLogger {
	if l.logger == nil {
		return l
	}

	return NewWrappedLogger(l.logger.Named(name))
}

// With returns a WrappedLogger that adds the given key-value pairs to every entry.
func (l *WrappedLogger) With(keysAndValues ...interface{}) *WrappedLogger {
	if l.logger == nil {
		return l
	}

	return NewWrappedLogger(l.logger.With(keysAndValues...))
}

// LogDebug uses fmt.Sprint to construct and log a message.
func (l *WrappedLogger) LogDebug(args ...interface{}) {
	l.log(LevelDebug, "", args)
}

// LogDebugf uses fmt.Sprintf to log a templated message.
func (l *WrappedLogger) LogDebugf(template string, args ...interface{}) {
	l.log(LevelDebug, template, args)
}

// LogDebugw logs a message with additional key-value pairs.
func (l *WrappedLogger) LogDebugw(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Debugw(msg, keysAndValues...)
	}
}

// LogInfo uses fmt.Sprint to construct and log a message.
func (l *WrappedLogger) LogInfo(args ...interface{}) {
	l.log(LevelInfo, "", args)
}

// LogInfof uses fmt.Sprintf to log a templated message.
func (l *WrappedLogger) LogInfof(template string, args ...interface{}) {
	l.log(LevelInfo, template, args)
}

// LogWarn uses fmt.Sprint to construct and log a message.
func (l *WrappedLogger) LogWarn(args ...interface{}) {
	l.log(LevelWarn, "", args)
}

// LogWarnf uses fmt.Sprintf to log a templated message.
func (l *WrappedLogger) LogWarnf(template string, args ...interface{}) {
	l.log(LevelWarn, template, args)
}

// LogWarnw logs a message with additional key-value pairs.
func (l *WrappedLogger) LogWarnw(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Warnw(msg, keysAndValues...)
	}
}

// LogError uses fmt.Sprint to construct and log a message.
func (l *WrappedLogger) LogError(args ...interface{}) {
	l.log(LevelError, "", args)
}

// LogErrorf uses fmt.Sprintf to log a templated message.
func (l *WrappedLogger) LogErrorf(template string, args ...interface{}) {
	l.log(LevelError, template, args)
}

// LogErrorw logs a message with additional key-value pairs.
func (l *WrappedLogger) LogErrorw(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Errorw(msg, keysAndValues...)
	}
}

// log dispatches to the sugared logger, an empty template means fmt.Sprint semantics.
func (l *WrappedLogger) log(level Level, template string, args []interface{}) {
	if l.logger == nil {
		return
	}

	if template == "" {
		switch level {
		case LevelDebug:
			l.logger.Debug(args...)
		case LevelInfo:
			l.logger.Info(args...)
		case LevelWarn:
			l.logger.Warn(args...)
		default:
			l.logger.Error(args...)
		}

		return
	}

	switch level {
	case LevelDebug:
		l.logger.Debugf(template, args...)
	case LevelInfo:
		l.logger.Infof(template, args...)
	case LevelWarn:
		l.logger.Warnf(template, args...)
	default:
		l.logger.Errorf(template, args...)
	}
}
