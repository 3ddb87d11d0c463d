package scheduler

import "fmt"

// RejectionError is returned by a boundary that received the submission and refused it,
// e.g. because the account is over quota or the scheduler is down. Reason is reported
// to the caller verbatim.
type RejectionError struct {
	Reason string
}

func (err *RejectionError) Error() string {
	return err.Reason
}

// LaunchError is returned by a boundary that could not invoke the dispatch target or the
// submit command at all.
type LaunchError struct {
	Target string
	Err    error
}

func (err *LaunchError) Error() string {
	if err.Target == "" {
		return err.Err.Error()
	}
	return fmt.Sprintf("failed to launch %s: %v", err.Target, err.Err)
}

func (err *LaunchError) Unwrap() error {
	return err.Err
}
