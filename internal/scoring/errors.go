package scoring

import "fmt"

// NetworkError indicates the collaborator could not be reached or timed out.
// The submitted action caused no state change and may be retried.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("scoring %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ScoringError indicates the collaborator answered but the response was
// unusable: an error status, or a payload missing required fields
type ScoringError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ScoringError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("scoring %s: %s", e.Op, e.Reason)
}

func (e *ScoringError) Unwrap() error { return e.Err }
