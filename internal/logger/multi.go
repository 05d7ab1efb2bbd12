package logger

import (
	"fmt"

	"github.com/harrison/crucible/internal/models"
)

// MultiLogger fans every call out to each of its loggers in order.
type MultiLogger []Logger

// NewMultiLogger drops nil entries.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	out := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (m MultiLogger) Tracef(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, l := range m {
		l.Tracef("%s", msg)
	}
}

func (m MultiLogger) Debugf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, l := range m {
		l.Debugf("%s", msg)
	}
}

func (m MultiLogger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, l := range m {
		l.Infof("%s", msg)
	}
}

func (m MultiLogger) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, l := range m {
		l.Warnf("%s", msg)
	}
}

func (m MultiLogger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, l := range m {
		l.Errorf("%s", msg)
	}
}

func (m MultiLogger) LogIteration(result models.RefinementResult, maxIterations int) {
	for _, l := range m {
		l.LogIteration(result, maxIterations)
	}
}

func (m MultiLogger) LogOutcome(summary OutcomeSummary) {
	for _, l := range m {
		l.LogOutcome(summary)
	}
}
