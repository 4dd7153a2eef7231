package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
)

// ConnectWithRetry calls Connect until it succeeds, fails with an error that
// is not Recoverable, or policy.MaxAttempts is used up. Backoff between
// attempts grows per policy. Disconnect or ctx cancellation stop the retries.
func (s *Session) ConnectWithRetry(ctx context.Context, h device.Handle, policy RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	s.mu.Lock()
	interrupt := s.interrupt
	s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		err := s.Connect(ctx, h, policy.Timeout)
		if err == nil {
			return nil
		}
		if !Recoverable(err) || attempt >= policy.MaxAttempts {
			return err
		}

		delay := policy.Delay(attempt)
		s.logger.WithFields(logrus.Fields{
			"device":  h.ID,
			"attempt": attempt,
			"of":      policy.MaxAttempts,
			"backoff": delay,
		}).WithError(err).Info("Retrying connection")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return newError(KindConnectCanceled, ctx.Err())
		case <-interrupt:
			timer.Stop()
			return newError(KindConnectCanceled, errDisconnectRequested)
		}
	}
}
