package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allVisitStatuses = []VisitStatus{
	VisitScheduled, VisitRescheduled, VisitInProgress, VisitCompleted,
	VisitFailed, VisitNoAccess, VisitCancelled, VisitMissed,
}

func TestVisitTransitionTable(t *testing.T) {
	allowed := map[VisitStatus][]VisitStatus{
		VisitScheduled:   {VisitInProgress, VisitRescheduled, VisitCancelled, VisitMissed},
		VisitRescheduled: {VisitInProgress, VisitCancelled, VisitMissed},
		VisitInProgress:  {VisitCompleted, VisitFailed, VisitNoAccess},
		VisitFailed:      {VisitRescheduled},
		VisitNoAccess:    {VisitRescheduled},
		VisitMissed:      {VisitRescheduled},
		VisitCompleted:   {},
		VisitCancelled:   {},
	}

	// Check every (from, to) pair against the expected table so an
	// accidentally added or removed edge fails loudly.
	for _, from := range allVisitStatuses {
		permitted := map[VisitStatus]bool{}
		for _, to := range allowed[from] {
			permitted[to] = true
		}
		for _, to := range allVisitStatuses {
			got := from.CanTransitionTo(to)
			assert.Equal(t, permitted[to], got, "%s -> %s", from, to)
		}
	}
}

func TestVisitTerminalStates(t *testing.T) {
	assert.True(t, VisitCompleted.Terminal())
	assert.True(t, VisitCancelled.Terminal())

	for _, s := range []VisitStatus{VisitScheduled, VisitRescheduled, VisitInProgress, VisitFailed, VisitNoAccess, VisitMissed} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestParseVisitStatus(t *testing.T) {
	for _, s := range allVisitStatuses {
		parsed, ok := ParseVisitStatus(string(s))
		assert.True(t, ok, string(s))
		assert.Equal(t, s, parsed)
	}

	_, ok := ParseVisitStatus("postponed")
	assert.False(t, ok)
}
