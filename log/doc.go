// Package log provides a simple, leveled logging interface for the SONA
// memory engine.
//
// Every component of the engine accepts an optional Logger and falls back to
// the package-level default, so logging can be enabled globally without
// threading logger objects through constructors.
//
// # Log Levels
//
// The package supports five log levels, in order of increasing severity:
//
//   - LogLevelDebug: Detailed debugging information for development
//   - LogLevelInfo: General informational messages about normal operation
//   - LogLevelWarn: Warning messages for potentially problematic situations
//   - LogLevelError: Error messages for failures that need attention
//   - LogLevelNone: Disables all logging output
//
// # Example Usage
//
// Basic logging:
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("consolidation complete: %d patterns merged", merged)
//
// Custom output:
//
//	file, _ := os.OpenFile("sona.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
//	defer file.Close()
//	logger := log.NewCustomLogger(file, log.LogLevelDebug)
//
// Using golog as the backend:
//
//	glogger := golog.New()
//	log.SetDefaultLogger(log.NewGologLogger(glogger))
//
// Disabling logging entirely:
//
//	log.SetDefaultLogger(&log.NoOpLogger{})
package log // import "github.com/smallnest/sona/log"
