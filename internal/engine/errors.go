package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start on an engine that is running.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("engine stopped")
)

// ConfigError reports an invalid engine configuration.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid engine config: %s=%v %s", e.Field, e.Value, e.Reason)
}

// ScanError reports a scan aborted by a store failure.
//
// Claims already checked before the failure keep their recorded results;
// the remaining claims are picked up by the next scan.
type ScanError struct {
	Report ScanReport
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan aborted after %d checks: %v", e.Report.Checked, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if the error is an engine configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsScanError returns true if the error is an aborted scan.
// Uses errors.As to handle wrapped errors.
func IsScanError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}
