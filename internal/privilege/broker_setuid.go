//go:build !cap

package privilege

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// setuidBroker implements Broker by toggling the effective uid between the
// real (invoking) user and a target uid (typically the database owner).
// This is the default backend, matching installations where the ws binary
// is installed setuid-root rather than granted Linux capabilities.
type setuidBroker struct {
	dbUID   int
	realUID int
}

func newBackend(dbUID int) Broker {
	return &setuidBroker{dbUID: dbUID, realUID: os.Getuid()}
}

func (b *setuidBroker) raise(assumeDB bool) (*Guard, error) {
	if os.Geteuid() == 0 && os.Getuid() == 0 {
		return &Guard{broker: b}, nil
	}
	if err := unix.Seteuid(0); err != nil {
		return nil, fmt.Errorf("privilege: seteuid(0): %w", err)
	}
	target := b.realUID
	if assumeDB {
		if err := unix.Seteuid(b.dbUID); err != nil {
			_ = unix.Seteuid(b.realUID)
			return nil, fmt.Errorf("privilege: seteuid(dbuid=%d): %w", b.dbUID, err)
		}
	}
	return &Guard{
		broker: b,
		lowerFunc: func(targetUID int) error {
			return unix.Seteuid(targetUID)
		},
		targetUID: target,
	}, nil
}

func (b *setuidBroker) Raise(_ ...Authority) (*Guard, error) {
	return b.raise(false)
}

func (b *setuidBroker) RaiseAsDB(_ ...Authority) (*Guard, error) {
	return b.raise(true)
}

func (b *setuidBroker) Drop(targetUID int) error {
	// Permanently reduce to targetUID: clear the saved-set-uid too by
	// using Setresuid, so no later Seteuid(0) can succeed.
	if err := unix.Setresuid(targetUID, targetUID, targetUID); err != nil {
		return fmt.Errorf("privilege: drop to uid %d: %w", targetUID, err)
	}
	return nil
}

func (b *setuidBroker) IsSetuid() bool   { return b.realUID != 0 }
func (b *setuidBroker) HasCaps() bool    { return false }
func (b *setuidBroker) IsUserMode() bool { return os.Geteuid() != 0 && os.Getuid() != 0 }
