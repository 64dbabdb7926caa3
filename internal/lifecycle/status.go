// Package lifecycle holds the verification status lattice mirrored into order
// metafields: pending -> enrolled -> verified, with flagged as a side branch.
package lifecycle

import "strings"

type Status string

const (
	Unknown  Status = ""
	Pending  Status = "pending"
	Enrolled Status = "enrolled"
	Verified Status = "verified"
	Flagged  Status = "flagged"
)

func Parse(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case Pending, Enrolled, Verified, Flagged:
		return st
	default:
		return Unknown
	}
}

func (s Status) String() string { return string(s) }

func (s Status) Known() bool { return s != Unknown }

func rank(s Status) int {
	switch s {
	case Pending:
		return 1
	case Enrolled:
		return 2
	case Verified:
		return 3
	default:
		return 0
	}
}

// Allows reports whether a write of next may land on top of cur.
// Flagged overrides anything; once flagged only another flagged write lands.
// Otherwise the write must not move backwards in the lattice.
func Allows(cur, next Status) bool {
	if !next.Known() {
		return false
	}
	if next == Flagged {
		return true
	}
	if cur == Flagged {
		return false
	}
	return rank(next) >= rank(cur)
}

// Advances reports whether next is a real forward move from cur.
// Replays of the current status allow a write but do not advance.
func Advances(cur, next Status) bool {
	return cur != next && Allows(cur, next)
}
