package wsmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountersIncrement(t *testing.T) {
	r := NewRegistry()
	r.SweepCyclesTotal.WithLabelValues("ws1").Inc()
	r.EntriesExpired.WithLabelValues("ws1").Inc()
	r.EntriesExpired.WithLabelValues("ws1").Inc()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestTimerObservesDuration(t *testing.T) {
	r := NewRegistry()
	timer := NewTimer()
	timer.ObserveDuration(r.SweepDuration, "ws1")

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
