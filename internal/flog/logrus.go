// Package flog provides the tagged logrus wrapper used by the fst package's
// builder and facade.
package flog

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// fstLogger is a package-private *logrus.Logger, distinct from
// logrus.StandardLogger(). fst is a library package, not a CLI entry point:
// mutating the process-wide standard logger's level, formatter and hooks
// (as the reference sources' package does, since those are a binary's own
// logging setup) would silently reconfigure whatever logging the importing
// application already has. Every component's tagged entry is scoped to this
// one logger instance instead, built once.
var (
	fstLogger     *logrus.Logger
	fstLoggerOnce sync.Once
)

func sharedLogger() *logrus.Logger {
	fstLoggerOnce.Do(func() {
		fstLogger = logrus.New()
		fstLogger.Level = logrus.InfoLevel
		if formatter, ok := fstLogger.Formatter.(*logrus.TextFormatter); ok {
			formatter.ForceColors = true
		}
		fstLogger.AddHook(new(taggedHook))
	})
	return fstLogger
}

// NewLogger returns a logrus entry that prefixes every message with
// "[tag]: ", tag naming the component logging (e.g. "fst/builder",
// "fst/dense").
func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(sharedLogger()).WithField("tag", tag)
}

// taggedHook moves the "tag" field set by NewLogger into a "[tag]: " message
// prefix, so tagged entries read the same whether or not the chosen
// formatter prints structured fields.
type taggedHook struct{}

func (h *taggedHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *taggedHook) Fire(entry *logrus.Entry) error {
	tagObj, loaded := entry.Data["tag"]
	if !loaded {
		return nil
	}
	tag, _ := tagObj.(string)
	delete(entry.Data, "tag")
	entry.Message = strings.ReplaceAll(entry.Message, tag+": ", "")
	entry.Message = "[" + tag + "]: " + entry.Message
	return nil
}
