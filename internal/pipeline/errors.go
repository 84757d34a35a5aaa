// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when a run is requested while one is running.
	ErrRunInProgress = errors.New("a run is already in progress")

	// ErrDependencyUnavailable matches every DependencyError.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// CandidateError is a failure scoped to one artist or release. The run
// records it and carries on.
type CandidateError struct {
	Artist string
	Title  string
	Err    error
}

func (e *CandidateError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("artist %q: %v", e.Artist, e.Err)
	}
	return fmt.Sprintf("%q by %q: %v", e.Title, e.Artist, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// DependencyError aborts a run: the collaborator was unavailable before it
// answered once in the stage.
type DependencyError struct {
	Dependency string
	Stage      int
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %d: %s unavailable: %v", e.Stage, e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDependencyUnavailable) hold for any DependencyError.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyUnavailable
}
