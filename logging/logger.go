// Package logging contains the Logger abstraction shared by the test framework, the remote
// session client, and the result reporter.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the project. A *logrus.Logger
// satisfies it, as does CapturingLogger.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

// NewProcessLogger creates the logger used for messages that are not tied to any one test.
func NewProcessLogger(out io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// DebugLogger returns a Logger that writes to l at debug level, for detail that is only
// wanted when debugging is turned on.
func DebugLogger(l *logrus.Logger) Logger {
	return debugLogger{l}
}

type debugLogger struct {
	l *logrus.Logger
}

func (d debugLogger) Printf(message string, args ...interface{}) {
	d.l.Debugf(message, args...)
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger accumulates messages in memory so they can be shown later, for instance
// only if a test fails. It is safe for concurrent use.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

// String returns the messages without timestamps, one per line.
func (output CapturedOutput) String() string {
	var sb strings.Builder
	for _, m := range output {
		sb.WriteString(m.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

// TeeLogger sends each message to all of the specified loggers.
func TeeLogger(loggers ...Logger) Logger {
	return teeLogger(loggers)
}

type teeLogger []Logger

func (t teeLogger) Printf(message string, args ...interface{}) {
	for _, l := range t {
		l.Printf(message, args...)
	}
}
