// Package rtlog provides the single structured logger shared by the IC/rewriter
// subsystem. Every package here logs through it instead of fmt.Println so that a
// host embedding this module can route IC activity (commits, invalidations,
// megamorphic transitions) into its own logging pipeline.
package rtlog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Value // zerolog.Logger

func init() {
	current.Store(zerolog.New(io.Discard).With().Timestamp().Logger())
}

// Set installs l as the package-wide logger. Call once during process startup;
// safe to call concurrently with L (atomic.Value swap).
func Set(l zerolog.Logger) {
	current.Store(l)
}

// SetDebugWriter is a convenience wrapper for tests and cmd/icdemo: it installs
// a human-readable logger at the given level writing to w.
func SetDebugWriter(w io.Writer, level zerolog.Level) {
	Set(zerolog.New(w).Level(level).With().Timestamp().Logger())
}

// L returns the current logger.
func L() zerolog.Logger {
	return current.Load().(zerolog.Logger)
}

// Disable silences all logging (the default at init).
func Disable() {
	Set(zerolog.New(io.Discard))
}

// Default installs a console logger on stderr at the given level; used by
// cmd/icdemo.
func Default(level zerolog.Level) {
	Set(zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger())
}
