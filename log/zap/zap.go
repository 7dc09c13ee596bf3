package zap

import (
	"github.com/unkn0wn-root/casseq"
	"go.uber.org/zap"
)

type ZapLogger struct{ L *zap.Logger }

// New wraps l, skipping one caller frame so log lines carry the generator
// call site rather than this adapter.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.WithOptions(zap.AddCallerSkip(1))} }

func (z ZapLogger) Debug(msg string, f casseq.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f casseq.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f casseq.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f casseq.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f casseq.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
