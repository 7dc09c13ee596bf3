package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/casseq"
)

// LogrusLogger forwards generator logs to logrus. FieldLogger is satisfied
// by *logrus.Logger and *logrus.Entry alike, so a pre-scoped entry works.
type LogrusLogger struct{ L logrus.FieldLogger }

// New wraps l.
func New(l logrus.FieldLogger) LogrusLogger { return LogrusLogger{L: l} }

func (l LogrusLogger) Debug(msg string, f casseq.Fields) {
	l.L.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f casseq.Fields) { l.L.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f casseq.Fields) { l.L.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f casseq.Fields) {
	l.L.WithFields(logrus.Fields(f)).Error(msg)
}
