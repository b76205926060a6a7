package logger

// printf-style helpers for startup and background messages

// Info logs at info level
func Info(format string, args ...any) {
	zlog.Info().Msgf(format, args...)
}

// Warn logs at warn level
func Warn(format string, args ...any) {
	zlog.Warn().Msgf(format, args...)
}

// Error logs at error level
func Error(format string, args ...any) {
	zlog.Error().Msgf(format, args...)
}

// Fatal logs and exits the process
func Fatal(format string, args ...any) {
	zlog.Fatal().Msgf(format, args...)
}
