// Package log provides shardsink's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. It is backed by Go's standard library
// slog, so output formatting (text or JSON) and level gating ride on the
// slog handlers while the rest of the codebase programs against the facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat("text"),
//	)
//	l = l.With(log.Component("ingest"), log.Str("stream", "orders"))
//	l.Info("receiver started", log.Int("shards", 4))
//
// To integrate with libraries that write through the standard library's
// log package (Pebble does), use RedirectStdLog.
package log
