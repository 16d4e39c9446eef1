package privilege

// noopBroker is a Broker that performs no privilege transitions at all. It
// is used by tests for every component that takes a Broker as a
// dependency, so unit tests can exercise the database, directory manager,
// and engines without requiring root or capabilities.
type noopBroker struct{}

// NewNoop returns a Broker whose Raise/RaiseAsDB/Drop are all no-ops,
// suitable for unprivileged test environments.
func NewNoop() Broker { return noopBroker{} }

func (noopBroker) Raise(_ ...Authority) (*Guard, error)      { return &Guard{}, nil }
func (noopBroker) RaiseAsDB(_ ...Authority) (*Guard, error)  { return &Guard{}, nil }
func (noopBroker) Drop(_ int) error                          { return nil }
func (noopBroker) IsSetuid() bool                            { return false }
func (noopBroker) HasCaps() bool                             { return false }
func (noopBroker) IsUserMode() bool                          { return true }
