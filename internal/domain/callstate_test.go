package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallStateTransitions(t *testing.T) {
	assert.True(t, CallIdle.CanTransition(CallNegotiating))
	assert.True(t, CallNegotiating.CanTransition(CallConnected))
	assert.True(t, CallNegotiating.CanTransition(CallClosed))
	assert.True(t, CallConnected.CanTransition(CallClosed))

	assert.False(t, CallIdle.CanTransition(CallConnected))
	assert.False(t, CallConnected.CanTransition(CallNegotiating))
	assert.False(t, CallClosed.CanTransition(CallNegotiating))
	assert.False(t, CallClosed.CanTransition(CallClosed))
}

func TestCallStateLive(t *testing.T) {
	assert.False(t, CallIdle.Live())
	assert.True(t, CallNegotiating.Live())
	assert.True(t, CallConnected.Live())
	assert.False(t, CallClosed.Live())
	assert.Equal(t, "negotiating", CallNegotiating.String())
}
