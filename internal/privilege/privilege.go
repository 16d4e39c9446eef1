// Package privilege implements the scoped elevation/reduction broker (C1).
// Two backends exist behind the Broker interface, selected at build time:
// the "setuid" backend (default, seteuid between the invoking uid and a
// target uid) and the "capability" backend (build tag "cap", fine-grained
// Linux capabilities via github.com/syndtr/gocapability). Callers never
// construct a backend directly; they call New, which picks the build's
// backend, and always release a raised Guard through a defer so a raise can
// never leak across a function boundary.
package privilege

import "fmt"

// Authority names one of the privileged operations a ws tool needs to
// perform on behalf of another user: overriding DAC checks to traverse or
// write any path, changing file ownership, and overriding DAC for read or
// directory-search only.
type Authority int

const (
	// Override grants the ability to bypass file read/write/execute
	// permission checks (DAC_OVERRIDE).
	Override Authority = iota
	// Chown grants the ability to change file owner/group (CHOWN).
	Chown
	// ReadSearch grants the ability to bypass directory search/read
	// permission checks only (DAC_READ_SEARCH).
	ReadSearch
)

func (a Authority) String() string {
	switch a {
	case Override:
		return "override"
	case Chown:
		return "chown"
	case ReadSearch:
		return "read-search"
	default:
		return "unknown"
	}
}

// Broker is the capability set a privileged ws command is built against.
// Every Raise must be paired with exactly one Release on every exit path,
// including error paths — callers should always use Guard via defer.
type Broker interface {
	// Raise enables the named authorities on the current process and
	// returns a Guard that lowers them again on Release.
	Raise(authorities ...Authority) (*Guard, error)
	// RaiseAsDB is like Raise, but additionally impersonates the
	// database owner identity where the backend requires that to
	// succeed on root-squashed network filesystems (the setuid
	// backend); the capability backend treats it identically to Raise.
	RaiseAsDB(authorities ...Authority) (*Guard, error)
	// Drop permanently reduces the process to a bounded permitted set.
	// After Drop, no later Raise can re-acquire what was dropped. The ws
	// commands never call it; they rely only on per-operation Raise and
	// Guard.Release.
	Drop(targetUID int) error
	// IsSetuid reports whether this is the setuid backend running for a
	// non-root invoking user (real uid != 0).
	IsSetuid() bool
	// HasCaps reports whether this backend is the capability backend.
	HasCaps() bool
	// IsUserMode reports whether no elevation is available at all (the
	// binary is running unprivileged, real == effective uid, no caps).
	IsUserMode() bool
}

// Guard represents a currently-raised set of authorities. Release lowers
// them. Calling Release more than once is a no-op.
type Guard struct {
	broker    Broker
	released  bool
	lowerFunc func(targetUID int) error
	targetUID int
}

// Release lowers the authorities this guard raised, switching effective
// identity to targetUID if the backend requires that (setuid mode).
func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	if g.lowerFunc == nil {
		return nil
	}
	if err := g.lowerFunc(g.targetUID); err != nil {
		return fmt.Errorf("privilege: lower: %w", err)
	}
	return nil
}

// New constructs the build's Broker backend. dbUID is the identity
// filesystem writes should run as once a Guard is active in setuid mode
// (the database owner); it is not used by the capability backend, which
// never changes effective uid.
func New(dbUID int) Broker {
	return newBackend(dbUID)
}
