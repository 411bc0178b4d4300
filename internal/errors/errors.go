package errors

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned when a requested resource doesn't exist
var ErrNotFound = errors.New("resource not found")

// ErrInvalidInput is returned when the provided input is invalid
var ErrInvalidInput = errors.New("invalid input")

// ErrDeviceUnavailable is returned when a device can't be reached or is not responding
var ErrDeviceUnavailable = errors.New("device unavailable")

// ErrInternal is returned for unexpected internal errors
var ErrInternal = errors.New("internal error")

// ErrDiscoveryFailed is returned when the discovery transport itself fails
// (socket or interface errors), as opposed to simply finding no lights.
var ErrDiscoveryFailed = errors.New("discovery failed")

// ErrFatal marks an error the bridge cannot recover from in-process.
// The process boundary exits non-zero and relies on its supervisor to restart.
var ErrFatal = errors.New("fatal")

// LogErrorAndReturn logs an error with structured context and returns it
func LogErrorAndReturn(logger *slog.Logger, err error, message string, args ...any) error {
	if err == nil {
		return nil
	}

	logger.Error(message, append([]any{"error", err}, args...)...)
	return err
}

// WrapErrorf wraps an error with additional context using fmt.Errorf
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// IsNotFound returns true if the error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput returns true if the error is or wraps ErrInvalidInput
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDeviceUnavailable returns true if the error is or wraps ErrDeviceUnavailable
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}

// IsDiscoveryFailed returns true if the error is or wraps ErrDiscoveryFailed
func IsDiscoveryFailed(err error) bool {
	return errors.Is(err, ErrDiscoveryFailed)
}

// IsFatal returns true if the error is or wraps ErrFatal
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// NotFoundf returns a formatted ErrNotFound error
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidInputf returns a formatted ErrInvalidInput error
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidInput)...)
}

// DeviceUnavailablef returns a formatted ErrDeviceUnavailable error
func DeviceUnavailablef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrDeviceUnavailable)...)
}

// Internalf returns a formatted ErrInternal error
func Internalf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}

// DiscoveryFailedf returns a formatted error wrapping both ErrDiscoveryFailed and ErrFatal
func DiscoveryFailedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w: %w", append(args, ErrDiscoveryFailed, ErrFatal)...)
}

// Fatalf returns a formatted ErrFatal error
func Fatalf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrFatal)...)
}
