// Package zap adapts a *zap.Logger to easycache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/easycache"
)

var _ easycache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "easycache" so its entries are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("easycache")} }

func (z Logger) Debug(msg string, f easycache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f easycache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f easycache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f easycache.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts by key so entries render in a stable order.
func fields(f easycache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
