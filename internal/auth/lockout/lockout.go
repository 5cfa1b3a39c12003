// Package lockout describes the per-identity brute-force lockout rules.
//
// The functions here are pure: they say what the next state is. Stores apply
// the same transitions atomically in a single conditional update, so the
// rules live here and the concurrency lives in the database.
package lockout

import "time"

// Defaults for the lockout policy.
const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// State of an identity with respect to lockout.
type State int

const (
	// Open means logins are evaluated normally.
	Open State = iota
	// Locked means logins are refused without consulting the password.
	Locked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	default:
		return "open"
	}
}

// Policy holds the lockout thresholds.
type Policy struct {
	Threshold int           // failures that trigger a lock
	Duration  time.Duration // how long a lock lasts
}

// DefaultPolicy returns the 5 failures / 30 minutes policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Normalize fills zero fields with defaults.
func (p Policy) Normalize() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

// IsLocked reports whether lockUntil is still in the future at now.
func IsLocked(lockUntil *time.Time, now time.Time) bool {
	return lockUntil != nil && lockUntil.After(now)
}

// StateAt returns the state of an identity at now.
func (p Policy) StateAt(lockUntil *time.Time, now time.Time) State {
	if IsLocked(lockUntil, now) {
		return Locked
	}
	return Open
}

// Status is the lockout portion of an identity record.
type Status struct {
	Attempts  int
	LockUntil *time.Time
}

// Locked reports whether the status is locked at now.
func (s Status) Locked(now time.Time) bool { return IsLocked(s.LockUntil, now) }

// Fail returns the status after a failed password check at now.
//
//   - while locked: unchanged (callers must not get here, a locked account is
//     refused before the password is checked)
//   - after an expired lock: the lapsed window is forgotten and this failure
//     counts as the first one
//   - otherwise: one more failure, locking when the threshold is reached
func (p Policy) Fail(s Status, now time.Time) Status {
	p = p.Normalize()

	if s.Locked(now) {
		return s
	}

	if s.LockUntil != nil {
		return Status{Attempts: 1}
	}

	next := Status{Attempts: s.Attempts + 1}
	if next.Attempts >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockUntil = &until
	}
	return next
}
