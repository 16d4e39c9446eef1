//go:build cap

package privilege

import (
	"fmt"
	"os"

	"github.com/syndtr/gocapability/capability"
)

// capBroker implements Broker with fine-grained Linux capabilities instead
// of a setuid-root toggle. The process never changes effective uid; it
// raises only the specific DAC-bypass/chown authority a given operation
// needs into its effective set, then drops it back out.
type capBroker struct {
	dbUID int
	caps  capability.Capabilities
}

func newBackend(dbUID int) Broker {
	caps, err := capability.NewPid2(0)
	if err != nil {
		// Fatal per the broker's contract: a kernel refusal to report
		// capabilities means this process cannot safely continue.
		fmt.Fprintf(os.Stderr, "Error  : privilege: capability init: %v\n", err)
		os.Exit(2)
	}
	if err := caps.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error  : privilege: capability load: %v\n", err)
		os.Exit(2)
	}
	return &capBroker{dbUID: dbUID, caps: caps}
}

func toCap(a Authority) capability.Cap {
	switch a {
	case Override:
		return capability.CAP_DAC_OVERRIDE
	case Chown:
		return capability.CAP_CHOWN
	case ReadSearch:
		return capability.CAP_DAC_READ_SEARCH
	default:
		return capability.CAP_DAC_OVERRIDE
	}
}

func (b *capBroker) set(authorities []Authority, on bool) error {
	caps := make([]capability.Cap, 0, len(authorities))
	for _, a := range authorities {
		caps = append(caps, toCap(a))
	}
	if on {
		b.caps.Set(capability.EFFECTIVE, caps...)
	} else {
		b.caps.Unset(capability.EFFECTIVE, caps...)
	}
	if err := b.caps.Apply(capability.EFFECTIVE); err != nil {
		return fmt.Errorf("privilege: apply capabilities: %w", err)
	}
	return nil
}

func (b *capBroker) Raise(authorities ...Authority) (*Guard, error) {
	if len(authorities) == 0 {
		authorities = []Authority{Override, Chown, ReadSearch}
	}
	if err := b.set(authorities, true); err != nil {
		return nil, err
	}
	return &Guard{
		broker: b,
		lowerFunc: func(_ int) error {
			return b.set(authorities, false)
		},
	}, nil
}

// RaiseAsDB is identical to Raise for the capability backend: DAC-override
// capability already lets privileged operations touch files owned by the
// database uid without an identity switch.
func (b *capBroker) RaiseAsDB(authorities ...Authority) (*Guard, error) {
	return b.Raise(authorities...)
}

func (b *capBroker) Drop(_ int) error {
	// Permanently clear the permitted set down to nothing; future Raise
	// calls will fail because EFFECTIVE can never exceed PERMITTED.
	b.caps.Clear(capability.PERMITTED)
	b.caps.Clear(capability.EFFECTIVE)
	b.caps.Clear(capability.INHERITABLE)
	if err := b.caps.Apply(capability.CAPS); err != nil {
		return fmt.Errorf("privilege: drop capabilities: %w", err)
	}
	return nil
}

func (b *capBroker) IsSetuid() bool   { return false }
func (b *capBroker) HasCaps() bool    { return true }
func (b *capBroker) IsUserMode() bool { return false }
