package scheduler

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mini-hpc-submit/pkg/job"
)

type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "validation" // Descriptor broke an invariant, nothing was sent
	FailureRejection  FailureKind = "rejection"  // Scheduler boundary refused the submission
	FailureLaunch     FailureKind = "launch"     // Dispatch target or submit command could not be invoked
)

// DispatchResult is the outcome of one submission attempt.
type DispatchResult struct {
	Accepted       bool        `json:"accepted"`
	SchedulerJobID string      `json:"schedulerJobId,omitempty"` // Set only when accepted
	Failure        FailureKind `json:"failure,omitempty"`        // Set only when not accepted
	FailureReason  string      `json:"failureReason,omitempty"`  // Set only when not accepted
}

// Request is what a boundary receives: the validated descriptor and its rendered directives.
type Request struct {
	Descriptor job.JobDescriptor
	Directives job.DirectiveSet
}

// Boundary hands a submission to a cluster scheduler, which then runs the dispatch target.
// Submit returns the scheduler's job id. Refusals should be reported as *RejectionError
// and failures to invoke anything as *LaunchError.
type Boundary interface {
	Name() string
	Submit(ctx context.Context, req Request) (string, error)
}

// Dispatcher validates descriptors and hands them to a boundary. It keeps no state
// between submissions and may be shared between goroutines.
type Dispatcher struct {
	boundary  Boundary
	validator job.Validator
}

func NewDispatcher(boundary Boundary, validator job.Validator) *Dispatcher {
	return &Dispatcher{
		boundary:  boundary,
		validator: validator,
	}
}

// Submit validates d, renders it and calls the boundary exactly once. It never retries:
// resubmitting a resource request is the caller's decision.
func (s *Dispatcher) Submit(ctx context.Context, d job.JobDescriptor) DispatchResult {
	if err := s.validator.Validate(d); err != nil {
		log.Warnf("[scheduler] -- Job %s not submitted: %v", d.JobName, err)
		return failed(FailureValidation, err.Error())
	}

	req := Request{
		Descriptor: d,
		Directives: job.Render(d),
	}

	log.Infof("[scheduler] -- Submitting job %s to %s", d.JobName, s.boundary.Name())
	id, err := s.boundary.Submit(ctx, req)
	if err != nil {
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			log.Errorf("[scheduler] -- Error launching job %s: %v", d.JobName, err)
			return failed(FailureLaunch, err.Error())
		}
		reason := err.Error()
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			reason = rejection.Reason
		}
		log.Errorf("[scheduler] -- Job %s rejected by %s: %s", d.JobName, s.boundary.Name(), reason)
		return failed(FailureRejection, reason)
	}
	if id == "" {
		log.Errorf("[scheduler] -- %s accepted job %s without a job id", s.boundary.Name(), d.JobName)
		return failed(FailureRejection, "boundary returned no job id")
	}

	log.Infof("[scheduler] -- Job submitted: %s (id %s)", d.JobName, id)
	return DispatchResult{
		Accepted:       true,
		SchedulerJobID: id,
	}
}

func failed(kind FailureKind, reason string) DispatchResult {
	return DispatchResult{
		Accepted:      false,
		Failure:       kind,
		FailureReason: reason,
	}
}
