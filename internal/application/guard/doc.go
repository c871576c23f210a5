// Package guard provides the reentrancy guard shared by every value-moving
// dispatcher operation.
//
// At most one guarded operation may be active at a time. A second attempt
// while the guard is held, including one re-entering through an integration
// callback, fails with domain.ErrReentrancy.
package guard
