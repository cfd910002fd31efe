package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient       = errors.New("transient failure")
	ErrAuth            = errors.New("authentication error")
	ErrFileSystem      = errors.New("filesystem error")
	ErrValidation      = errors.New("validation error")
	ErrEmptyExport     = errors.New("no complete samples to export")
	ErrDevice          = errors.New("audio device error")
	ErrUnreadableAudio = errors.New("unreadable audio")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrExternalTool    = errors.New("external tool error")
)

// CLI exit codes keyed by error marker.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitEmpty      = 3
	ExitFileSystem = 4
	ExitAuth       = 5
	ExitDevice     = 6
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether err is worth another attempt. Only transient
// failures qualify; authentication and permanent upstream errors do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrExternalTool) || errors.Is(err, ErrConfiguration) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// ExitCode maps an error to the process exit code the CLI returns.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation):
		return ExitValidation
	case errors.Is(err, ErrEmptyExport):
		return ExitEmpty
	case errors.Is(err, ErrFileSystem):
		return ExitFileSystem
	case errors.Is(err, ErrAuth):
		return ExitAuth
	case errors.Is(err, ErrDevice):
		return ExitDevice
	default:
		return ExitFailure
	}
}

// Kind returns a short label for the marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrFileSystem):
		return "filesystem"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEmptyExport):
		return "empty_export"
	case errors.Is(err, ErrDevice):
		return "device"
	case errors.Is(err, ErrUnreadableAudio):
		return "unreadable_audio"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
