package domain

import "time"

// Lockout tracks consecutive failed password attempts.
type Lockout struct {
	Attempts    int
	LockedUntil *time.Time
}

// LockoutPolicy is the threshold and duration of an account lock.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

var DefaultLockoutPolicy = LockoutPolicy{MaxAttempts: 5, Duration: time.Hour}

// Locked reports whether the lock is still in force at now.
func (l Lockout) Locked(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// RegisterFailure records one failed attempt. A lock that has already
// lapsed starts a fresh count.
func (l Lockout) RegisterFailure(now time.Time, p LockoutPolicy) Lockout {
	if l.LockedUntil != nil && !now.Before(*l.LockedUntil) {
		l = Lockout{}
	}
	l.Attempts++
	if p.MaxAttempts > 0 && l.Attempts >= p.MaxAttempts && l.LockedUntil == nil {
		until := now.Add(p.Duration)
		l.LockedUntil = &until
	}
	return l
}
