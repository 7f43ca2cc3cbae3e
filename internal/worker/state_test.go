package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckTransition_LegalPathsSucceed(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateStopped, StateStarting},
		{StateStarting, StateRunning},
		{StateRunning, StatePaused},
		{StatePaused, StateRunning},
		{StateRunning, StateStopping},
		{StateStopping, StateStopped},
		{StateError, StateStopping},
	}
	for _, c := range cases {
		assert.NoError(t, checkTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestCheckTransition_IllegalPathsRejected(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateStopped, StateRunning},
		{StateStopped, StatePaused},
		{StateStopping, StateRunning},
		{StatePaused, StateStopped},
	}
	for _, c := range cases {
		err := checkTransition(c.from, c.to)
		assert.Error(t, err, "%s -> %s should be illegal", c.from, c.to)
		var te *TransitionError
		assert.ErrorAs(t, err, &te)
	}
}
