package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/groutine"
)

type dialResult struct {
	link device.Link
	err  error
}

// Connect connects to the device behind h and blocks until the session is
// Active or the attempt has failed and the session is Disconnected again.
//
// A running scan is stopped first. The attempt, dial through subscription,
// gives up after timeout (zero means Options.ConnectTimeout). Failures are
// ErrConnectTimeout, ErrConnectRejected, ErrSubscriptionFailed,
// ErrConnectCanceled (Disconnect, StopScan or ctx), ErrStaleHandle and ErrBusy.
func (s *Session) Connect(ctx context.Context, h device.Handle, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.ConnectTimeout
	}

	at, dialCtx, scan, err := s.beginAttempt(ctx, h, timeout)
	if err != nil {
		return err
	}
	defer close(at.done)
	defer at.cancel()

	if scan != nil {
		scan.stop()
	}

	link, err := s.dial(dialCtx, at)
	if err != nil {
		return s.abandon(at, trConnectFailed, s.classifyDialError(ctx, dialCtx, at, err), nil, false)
	}

	missing := s.missingCapability(link)

	s.mu.Lock()
	if at.canceled {
		s.mu.Unlock()
		s.releaseLink(link, false)
		return newError(KindConnectCanceled, errDisconnectRequested)
	}
	_ = s.transition(trLinked, nil, false)
	if missing != nil {
		s.mu.Unlock()
		return s.abandon(at, trConnectFailed, newError(KindConnectRejected, missing), link, false)
	}
	_ = s.transition(trResolved, nil, false)
	s.mu.Unlock()

	if err := s.subscribe(dialCtx, ctx, at, link); err != nil {
		return s.abandon(at, trSubscribeFailed, err, link, false)
	}

	return s.activate(at, link)
}

// beginAttempt validates the request and enters Connecting.
func (s *Session) beginAttempt(ctx context.Context, h device.Handle, timeout time.Duration) (*attempt, context.Context, *scanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, nil, nil, newError(KindBusy, errClosed)
	case s.state != Disconnected && s.state != Scanning:
		return nil, nil, nil, newError(KindBusy, fmt.Errorf("session is %s", s.state))
	case s.scan != nil && s.scan.halt != nil:
		// the scan is being ended by StopScan or Disconnect, which wait for onFound
		return nil, nil, nil, newError(KindConnectCanceled, s.scan.halt)
	}
	if err := s.checkHandle(h); err != nil {
		return nil, nil, nil, err
	}

	scan := s.scan
	if err := s.transition(trConnect, nil, false); err != nil {
		return nil, nil, nil, err
	}
	s.scan = nil

	now := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	at := &attempt{
		handle:    h,
		startedAt: now,
		deadline:  now.Add(timeout),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.attempt = at

	s.logger.WithFields(logrus.Fields{
		"device":  h.ID,
		"name":    h.Name,
		"timeout": timeout,
	}).Info("Connecting to device")
	return at, dialCtx, scan, nil
}

// checkHandle rejects handles minted by an earlier scan cycle. Callers hold s.mu.
func (s *Session) checkHandle(h device.Handle) error {
	if h.ID == "" {
		return newError(KindStaleHandle, errors.New("handle has no device identifier"))
	}
	if h.Epoch() != 0 && h.Epoch() != s.epoch {
		return newError(KindStaleHandle, fmt.Errorf("%s was discovered by an earlier scan", h))
	}
	return nil
}

// dial runs the transport dial on its own goroutine so the attempt can give up
// on time even if the transport ignores cancellation. A link that shows up
// after the attempt ended is closed straight away.
func (s *Session) dial(ctx context.Context, at *attempt) (device.Link, error) {
	results := make(chan dialResult, 1)
	groutine.Go(ctx, "dial", func(ctx context.Context) {
		link, err := s.transport.Connect(ctx, at.handle.ID)
		results <- dialResult{link: link, err: err}
	})

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		if r.link == nil {
			return nil, errors.New("transport returned no link")
		}
		if err := ctx.Err(); err != nil {
			s.dropLateLink(r.link)
			return nil, err
		}
		return r.link, nil

	case <-ctx.Done():
		groutine.Go(context.Background(), "dial-reaper", func(context.Context) {
			if r := <-results; r.err == nil && r.link != nil {
				s.dropLateLink(r.link)
			}
		})
		return nil, ctx.Err()
	}
}

func (s *Session) dropLateLink(link device.Link) {
	s.logger.WithField("device", link.Address()).Warn("Closing connection that completed after the attempt ended")
	if err := link.Close(); err != nil {
		s.logger.WithError(err).Debug("Close of late connection failed")
	}
}

func (s *Session) classifyDialError(ctx, dialCtx context.Context, at *attempt, err error) error {
	switch {
	case ctx.Err() != nil:
		return newError(KindConnectCanceled, ctx.Err())
	case errors.Is(dialCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return newError(KindConnectTimeout, fmt.Errorf("no link to %s within %s", at.handle.ID, at.deadline.Sub(at.startedAt)))
	case errors.Is(err, context.Canceled):
		return newError(KindConnectCanceled, err)
	default:
		return newError(KindConnectRejected, err)
	}
}

// missingCapability reports the first profile attribute the link lacks.
func (s *Session) missingCapability(link device.Link) error {
	p := s.opts.Profile
	for _, char := range []string{p.Timer, p.Status, p.Control} {
		if !link.HasCharacteristic(p.Service, char) {
			return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{p.Service, char}}
		}
	}
	return nil
}

// subscribe enables telemetry within the attempt deadline. The descriptor
// writes run on their own goroutine; when the deadline passes first the caller
// closes the link, which unblocks them.
func (s *Session) subscribe(ctx, parent context.Context, at *attempt, link device.Link) error {
	results := make(chan error, 1)
	groutine.Go(ctx, "subscribe", func(context.Context) {
		results <- s.enableTelemetry(link)
	})

	select {
	case err := <-results:
		return err
	case <-ctx.Done():
		if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return newError(KindConnectTimeout, fmt.Errorf("telemetry on %s not enabled within %s", at.handle.ID, at.deadline.Sub(at.startedAt)))
		}
		return newError(KindConnectCanceled, ctx.Err())
	}
}

// enableTelemetry subscribes to both telemetry channels. Either both succeed
// or any subscription that did succeed is removed again.
func (s *Session) enableTelemetry(link device.Link) error {
	p := s.opts.Profile

	timerErr := link.Subscribe(p.Service, p.Timer, func(b []byte) {
		s.onNotification(link, codec.ChannelTimer, b)
	})
	statusErr := link.Subscribe(p.Service, p.Status, func(b []byte) {
		s.onNotification(link, codec.ChannelStatus, b)
	})
	if timerErr == nil && statusErr == nil {
		return nil
	}

	var errs []error
	for _, sub := range []struct {
		channel codec.Channel
		char    string
		err     error
	}{
		{codec.ChannelTimer, p.Timer, timerErr},
		{codec.ChannelStatus, p.Status, statusErr},
	} {
		if sub.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.channel, sub.err))
			continue
		}
		if err := link.Unsubscribe(p.Service, sub.char); err != nil {
			s.logger.WithError(err).WithField("channel", sub.channel).Debug("Failed to release partial subscription")
		}
	}
	return newError(KindSubscriptionFailed, errors.Join(errs...))
}

// abandon releases what the attempt acquired and returns to Disconnected,
// unless Disconnect already owns the teardown.
func (s *Session) abandon(at *attempt, t trigger, cause error, link device.Link, subscribed bool) error {
	if link != nil {
		s.releaseLink(link, subscribed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if at.canceled {
		return newError(KindConnectCanceled, errDisconnectRequested)
	}
	s.attempt = nil
	_ = s.transition(t, cause, false)

	s.logger.WithFields(logrus.Fields{
		"device":  at.handle.ID,
		"elapsed": time.Since(at.startedAt).Round(time.Millisecond),
	}).WithError(cause).Warn("Connection attempt failed")
	return cause
}

func (s *Session) activate(at *attempt, link device.Link) error {
	s.mu.Lock()
	if at.canceled {
		s.mu.Unlock()
		s.releaseLink(link, true)
		return newError(KindConnectCanceled, errDisconnectRequested)
	}
	_ = s.transition(trSubscribed, nil, false)
	s.attempt = nil
	s.link = link
	s.deviceID = at.handle.ID
	stop := make(chan struct{})
	s.linkStop = stop
	s.mu.Unlock()

	s.watchLink(link, stop)

	s.logger.WithFields(logrus.Fields{
		"device":  at.handle.ID,
		"elapsed": time.Since(at.startedAt).Round(time.Millisecond),
	}).Info("Device session active")
	return nil
}
