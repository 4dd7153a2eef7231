package session_test

import (
	"testing"
	"time"

	"github.com/srg/mazelink/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := session.RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     350 * time.Millisecond,
		Multiplier:   2,
	}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 350*time.Millisecond, p.Delay(3), "backoff MUST be capped by MaxDelay")
	assert.Equal(t, 350*time.Millisecond, p.Delay(10))
}

func TestRetryPolicyDelay_FlatWhenMultiplierUnset(t *testing.T) {
	p := session.RetryPolicy{InitialDelay: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, p.Delay(4))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, session.Recoverable(session.ErrConnectTimeout))
	assert.True(t, session.Recoverable(session.ErrConnectRejected))
	assert.True(t, session.Recoverable(session.ErrSubscriptionFailed))
	assert.False(t, session.Recoverable(session.ErrConnectCanceled))
	assert.False(t, session.Recoverable(session.ErrStaleHandle))
	assert.False(t, session.Recoverable(session.ErrBusy))
	assert.False(t, session.Recoverable(nil))
}

func TestDefaultOptions(t *testing.T) {
	o := session.DefaultOptions()
	assert.Equal(t, 10*time.Second, o.ScanWindow)
	assert.Equal(t, 10*time.Second, o.ConnectTimeout)
	assert.Equal(t, "MazeChallenge", o.NameFilter)
	assert.Equal(t, "4fafc201-1fb5-459e-8fcc-c5c9c331914b", o.Profile.Service)

	s := session.New(nil, &session.Options{ScanWindow: time.Second}, nil)
	assert.Equal(t, time.Second, s.Options().ScanWindow, "explicit option MUST win")
	assert.Equal(t, session.DefaultEventBuffer, s.Options().EventBuffer, "zero option MUST take the default")
}
