// Package errors provides foundational, type-safe error primitives used across sitebuilder.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, generation, filesystem, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, immediate, backoff)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.GenerationError("page generation failed").
//		WithContext("page", key).
//		WithCause(renderErr).
//		Build()
//
// Cancellation of an in-flight batch is never represented as an error; the
// scheduler reports it through its completed flag instead.
package errors
