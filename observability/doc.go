// Package observability provides a ready-made extension that records
// lifecycle metrics for the whole service.
//
// [MetricsExtension] counts job enqueues, completions, failures,
// retries, schedule fires, bottleneck detections and resolutions, and
// breaker state changes. Register it with the extension registry:
//
//	reg := ext.NewRegistry(logger)
//	reg.Register(observability.NewMetricsExtension())
//
// Instruments are created against the global OpenTelemetry
// MeterProvider; without one configured they are noops.
package observability
