// Package dispatch drives single runs, ensemble runs and parameter scans.
//
// Each dispatch runs to completion before returning:
//
//	resolve environment -> fresh argument store -> merge overrides -> render
//	-> apply resource overrides -> stage inputs -> build descriptor -> submit
//
// Collaborators are interfaces so tests can substitute mocks (see mocks/).
//
// Error handling:
//   - Unknown plugin or machine -> apperrors.ErrNotFound
//   - Non-positive scan step, bad size or cores -> apperrors.ErrInvalidArgument
//   - Unknown override keys are logged at WARN and otherwise ignored
//   - Staging or submission failure is returned wrapped; nothing is retried
//   - A scan stops at its first failing point and returns the results so far
package dispatch
