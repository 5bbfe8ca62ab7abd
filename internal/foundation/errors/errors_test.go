package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "site.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "site.yaml" {
			t.Errorf("expected context file=site.yaml, got %v", file)
		}
	})

	t.Run("Error detection through wrapping", func(t *testing.T) {
		base := GenerationError("page generation failed").WithContext("page", "guide").Build()
		wrapped := fmt.Errorf("rebuild: %w", base)

		if !IsClassified(wrapped) {
			t.Error("expected wrapped error to be classified")
		}
		if !HasCategory(wrapped, CategoryGeneration) {
			t.Error("expected generation category")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to map to internal")
		}
	})

	t.Run("WithContext does not mutate the original", func(t *testing.T) {
		orig := ConfigError("duplicate page source").Build()
		derived := orig.WithContext("duplicates", []string{"a.md"})

		if _, ok := orig.Context().Get("duplicates"); ok {
			t.Error("expected original context to stay untouched")
		}
		if _, ok := derived.Context().Get("duplicates"); !ok {
			t.Error("expected derived context to carry duplicates")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("disk full")
		err := WrapError(originalErr, CategoryFileSystem, "index write failed").
			Warning().
			Retryable().
			WithContext("path", "_site/siteData.json").
			Build()

		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if err.RetryStrategy() != RetryBackoff {
			t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
			retry    RetryStrategy
		}{
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryUserAction},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal, RetryNever},
			{"NotFoundError", NotFoundError("test"), CategoryNotFound, SeverityError, RetryNever},
			{"GenerationError", GenerationError("test"), CategoryGeneration, SeverityError, RetryImmediate},
			{"FileSystemError", FileSystemError("test"), CategoryFileSystem, SeverityError, RetryBackoff},
			{"JournalError", JournalError("test"), CategoryJournal, SeverityWarning, RetryNever},
			{"RuntimeError", RuntimeError("test"), CategoryRuntime, SeverityFatal, RetryNever},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
				if err.RetryStrategy() != tt.retry {
					t.Errorf("expected retry strategy %s, got %s", tt.retry, err.RetryStrategy())
				}
			})
		}
	})
}

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"config", ConfigError("duplicate page source").Build(), 7},
		{"generation", GenerationError("render failed").Build(), 11},
		{"wrapped generation", fmt.Errorf("build: %w", GenerationError("render failed").Build()), 11},
		{"internal", InternalError("boom").Build(), 10},
		{"unclassified", errors.New("unknown"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	err := GenerationError("page generation failed").WithContext("page", "guide/intro").Build()
	if got := adapter.FormatError(err); got != "Error: page generation failed (page guide/intro)" {
		t.Errorf("unexpected format: %q", got)
	}

	verbose := NewCLIErrorAdapter(true, slog.Default())
	if got := verbose.FormatError(err); got != err.Error() {
		t.Errorf("expected verbose format to use Error(), got %q", got)
	}
}

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	if got := adapter.StatusCodeFor(NotFoundError("unknown page").Build()); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
	if got := adapter.StatusCodeFor(ValidationError("bad body").Build()); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
	if got := adapter.StatusCodeFor(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got)
	}

	resp := adapter.FormatErrorResponse(GenerationError("render failed").WithContext("page", "a").Build())
	if resp.Code != string(CategoryGeneration) || !resp.Retryable {
		t.Errorf("unexpected payload: %+v", resp)
	}
}
