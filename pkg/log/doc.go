// Package log provides the logging abstraction used by every relay component.
//
// Components depend only on the [Logger] interface. The [ZerologAdapter]
// backs it with zerolog for the CLI and for applications that already use
// zerolog, and [NoopLogger] is the default when no logger is configured.
//
//	logger := log.NewZerologAdapter(os.Stderr, zerolog.InfoLevel)
//	chLog := log.With(logger, log.String("channel", "orders"))
//	chLog.Info("attached")
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
