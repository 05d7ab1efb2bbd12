package logger

import "strings"

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelValues[normalized]; ok {
		return normalized
	}
	return "info"
}

var levelValues = map[string]int{
	"trace": levelTrace,
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// IsValidLevel reports whether level names one of the five log levels.
func IsValidLevel(level string) bool {
	_, ok := levelValues[strings.ToLower(strings.TrimSpace(level))]
	return ok
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	if v, ok := levelValues[level]; ok {
		return v
	}
	return levelInfo
}

func allowed(configured, message string) bool {
	return logLevelToInt(message) >= logLevelToInt(configured)
}
