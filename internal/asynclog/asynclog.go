// Package asynclog threads the ambient pkg/log logger through the
// dispatcher without inventing a second logging abstraction: it just
// fixes which category each dispatcher phase logs under.
package asynclog

import "github.com/ha1tch/asyncstore/pkg/log"

// Dispatch returns the category logger dispatcher lifecycle events use:
// startup, worker-pool sizing, shutdown.
func Dispatch(l *log.Logger) *log.CategoryLogger {
	if l == nil {
		l = log.Default()
	}
	return l.Dispatch()
}

// Worker returns the category logger per-op tracing uses: dequeue,
// begin/commit/rollback, cursor-open failures.
func Worker(l *log.Logger) *log.CategoryLogger {
	if l == nil {
		l = log.Default()
	}
	return l.Worker()
}

// Flush returns the category logger the flush barrier uses: arming,
// participation, timeouts, completion.
func Flush(l *log.Logger) *log.CategoryLogger {
	if l == nil {
		l = log.Default()
	}
	return l.Flush()
}
