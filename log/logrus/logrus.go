// Package logrus adapts a logrus entry to easycache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/easycache"
)

var _ easycache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every entry with component=easycache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "easycache")}
}

func (l Logger) Debug(msg string, f easycache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f easycache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f easycache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f easycache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f easycache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}
