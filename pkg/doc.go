// Package pkg provides shared utilities for the usbhelper broker client.
//
// This package contains common functionality used by the broker transport,
// its configuration and the command-line client, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Rotating log files
//   - Sentinel error types for transport and protocol failures
//   - Result codes reported to callers that open devices
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentMonitor, "device attached", "name", name)
//
// Log output can be redirected to a size-bounded rotating file:
//
//	w, err := pkg.OpenLogFile("/var/log/usbhelper.log", pkg.RotateOptions{MaxSizeMB: 10})
//	pkg.SetLogOutput(w, pkg.LogFormatJSON)
//
// # Errors
//
// Failures are classified by sentinel values that survive wrapping:
//
//	if errors.Is(err, pkg.ErrTooManyFDs) {
//	    // Broker sent more descriptors than requested
//	}
//
// [Code] reduces any error to the fixed [ResultCode] set.
package pkg
