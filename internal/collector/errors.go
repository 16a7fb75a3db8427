package collector

import "fmt"

// SamplingError reports a skipped tick. The sequence counter is not advanced.
type SamplingError struct {
	Err error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sampling failed: %v", e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }
