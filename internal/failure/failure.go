// Package failure defines the error categories an invocation can end in and
// how they surface to callers.
package failure

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Categories. Concrete errors carry their own message and are marked with
// one of these so errors.Is keeps working through wrapping.
var (
	ErrNotFound            = errors.New("Function not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrProvisioning        = errors.New("workspace provisioning failed")
	ErrSandboxStart        = errors.New("sandbox start failed")
	ErrTimeout             = errors.New("Function execution timed out")
	ErrNonZeroExit         = errors.New("function exited with non-zero status")
	ErrOutputParse         = errors.New("Function did not produce valid output")
	ErrMetricsPersist      = errors.New("execution record not persisted")
	ErrCleanup             = errors.New("workspace cleanup failed")

	// Registry boundary.
	ErrInvalid  = errors.New("invalid function definition")
	ErrConflict = errors.New("route already registered")
)

func NotFound() error {
	return ErrNotFound
}

func UnsupportedLanguage(lang string) error {
	return errors.Mark(errors.Newf("Unsupported language: %q", lang), ErrUnsupportedLanguage)
}

func Provisioning(cause error) error {
	return errors.Mark(errors.Wrap(cause, "failed to provision workspace"), ErrProvisioning)
}

func SandboxStart(cause error) error {
	return errors.Mark(errors.Wrap(cause, "failed to start sandbox"), ErrSandboxStart)
}

func Timeout() error {
	return ErrTimeout
}

func NonZeroExit(code int64) error {
	return errors.Mark(errors.Newf("Function execution failed with status code %d", code), ErrNonZeroExit)
}

func Invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalid)
}

func Conflict(route string) error {
	return errors.Mark(errors.Newf("route %q is already registered", route), ErrConflict)
}

// HTTPStatus maps an invocation or registry error to a response status.
// Only an unknown route is a 404 on the invoke path; everything else is a 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message is the caller-facing text for err. Categories whose cause can
// carry host paths or daemon output get a fixed sentence; the cause chain
// belongs in the log.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrTimeout):
		return ErrTimeout.Error()
	case errors.Is(err, ErrProvisioning):
		return "Failed to prepare function workspace"
	case errors.Is(err, ErrSandboxStart):
		return "Failed to start function sandbox"
	case errors.IsAny(err, ErrNonZeroExit, ErrUnsupportedLanguage, ErrInvalid, ErrConflict):
		return errors.UnwrapAll(err).Error()
	default:
		return "Internal server error"
	}
}

// Retryable reports whether a caller may reasonably try the invocation again.
// Nothing in this module retries on its own.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrSandboxStart) ||
		errors.Is(err, ErrProvisioning)
}

// Status is the short label used for logs and metrics.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedLanguage):
		return "unsupported_language"
	case errors.Is(err, ErrProvisioning):
		return "provisioning_failure"
	case errors.Is(err, ErrSandboxStart):
		return "sandbox_start_failure"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNonZeroExit):
		return "non_zero_exit"
	default:
		return "error"
	}
}
