// Package xlog is a thin leveled-logging wrapper around glog, the same
// diagnostic logger the teacher vendors as 3rdparty/glog. It exists so the
// rest of the module logs through one seam instead of importing glog
// directly everywhere, matching the teacher's own convention of never
// letting fmt.Print* leak into non-CLI packages.
package xlog

import "github.com/golang/glog"

// Infof logs at informational level.
func Infof(format string, args ...interface{}) { glog.Infof(format, args...) }

// Warningf logs at warning level.
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }

// Errorf logs at error level. Used for malformed trace lines, which are
// skipped rather than fatal.
func Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }

// Fatalf logs at fatal level and terminates the process. cmd/cachesim uses
// it when a run returns an error.
func Fatalf(format string, args ...interface{}) { glog.Fatalf(format, args...) }

// Flush flushes any buffered log entries; call before process exit.
func Flush() { glog.Flush() }
