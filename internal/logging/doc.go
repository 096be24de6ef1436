// Package logging provides structured logging for failtrack.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - stderr output (stdout carries reports and the echoed test stream)
//   - Optional OpenTelemetry output through the otelzap bridge
//   - Automatic context field injection (trace_id, test name, failure id)
//   - Encoder-level secret redaction
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTestName(ctx, "TestLogin")
//	logger.Warn(ctx, "delivery attempt failed", zap.String("endpoint", ep))
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// Logger is safe for concurrent use.
package logging
