package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSources means no source file could be read at all.
	ErrNoSources = errors.New("no readable source files")

	// ErrBackendUnavailable means no load backend could be constructed.
	ErrBackendUnavailable = errors.New("no load backend available")

	// ErrResourceExhausted means a build ran out of memory or hit its row
	// budget. The service retries such a build once.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrArtifactNotFound means the precomputed artifact pair is absent.
	ErrArtifactNotFound = errors.New("processed artifact not found")

	// ErrArtifactInvalid means the artifact exists but cannot be used.
	ErrArtifactInvalid = errors.New("processed artifact invalid")

	// ErrBusy means another build held the build slot for too long.
	ErrBusy = errors.New("pipeline busy: another build is running")
)

// PipelineError is a build failure that survived the service's recovery.
// Code matches the user-facing code returned by MapError.
type PipelineError struct {
	Code    string
	Attempt int
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed after %d attempt(s) [%s]: %v", e.Attempt, e.Code, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
