// Package session drives one maze device through its lifecycle:
// discovery, connection, capability check, telemetry subscription,
// live decoding and teardown.
//
// A Session is safe for concurrent use. All state sits behind a single
// mutex and changes only through the transition table in state.go.
// Transport calls (scan, dial, subscribe, write, close) never run while
// the mutex is held; every phase that ran unlocked re-checks whether a
// concurrent Disconnect took over before it commits.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/groutine"
	"github.com/srg/mazelink/internal/ringchan"
)

var (
	errDisconnectRequested = errors.New("disconnect requested")
	errClosed              = errors.New("session closed")
	errLinkDropped         = errors.New("link dropped by device")
	errScanStopped         = errors.New("scan stopped")
)

// attempt is the single outstanding connection attempt.
type attempt struct {
	handle    device.Handle
	startedAt time.Time
	deadline  time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	canceled  bool // set by Disconnect, guarded by Session.mu
}

type Session struct {
	transport device.Transport
	opts      Options
	logger    *logrus.Logger

	mu        sync.Mutex
	state     State
	epoch     uint64
	scan      *scanRun
	attempt   *attempt
	link      device.Link
	linkStop  chan struct{}
	teardown  chan struct{} // non-nil while Disconnecting, closed on reaching Disconnected
	interrupt chan struct{} // closed by every Disconnect call
	deviceID  string
	closed    bool

	events *ringchan.Channel[Event]
}

// New creates a disconnected session on top of transport.
// A nil opts uses DefaultOptions; a nil logger uses logrus.New().
func New(transport device.Transport, opts *Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	o := opts.withDefaults()

	return &Session{
		transport: transport,
		opts:      o,
		logger:    logger,
		interrupt: make(chan struct{}),
		events:    ringchan.New[Event](o.EventBuffer),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the event stream. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// DeviceID returns the identifier of the last device that reached Active.
func (s *Session) DeviceID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID, s.deviceID != ""
}

// Dropped returns how many events were discarded because the consumer fell behind.
func (s *Session) Dropped() uint64 {
	return s.events.Metrics().Overwritten
}

// Options returns the effective options
func (s *Session) Options() Options {
	return s.opts
}

// transition moves the session along the table in state.go. Callers hold s.mu.
func (s *Session) transition(t trigger, cause error, unexpected bool) error {
	from := s.state
	to, ok := next(from, t)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"state":   from,
			"trigger": t,
		}).Error("Refused state transition")
		return newError(KindInvalidTransition, fmt.Errorf("%s in state %s", t, from))
	}

	s.state = to
	if from == to {
		return nil
	}

	fields := logrus.Fields{"from": from, "to": to, "trigger": t}
	if cause != nil {
		fields["error"] = cause
	}
	if unexpected {
		fields["unexpected"] = true
	}
	s.logger.WithFields(fields).Debug("State transition")

	s.emit(StateChanged{From: from, To: to, Err: cause, Unexpected: unexpected})
	return nil
}

func (s *Session) emit(ev Event) {
	if s.events.Send(ev) {
		s.logger.WithField("dropped", s.events.Metrics().Overwritten).Warn("Event consumer is falling behind, oldest event discarded")
	}
}

// beginTeardown enters Disconnecting. Callers hold s.mu.
func (s *Session) beginTeardown(t trigger, cause error, unexpected bool) (chan struct{}, error) {
	if err := s.transition(t, cause, unexpected); err != nil {
		return nil, err
	}
	td := make(chan struct{})
	s.teardown = td
	return td, nil
}

// finishTeardown leaves Disconnecting. Callers hold s.mu.
func (s *Session) finishTeardown(td chan struct{}, cause error, unexpected bool) {
	if err := s.transition(trTornDown, cause, unexpected); err != nil {
		s.logger.WithError(err).Error("Teardown finished in an unexpected state")
	}
	s.teardown = nil
	close(td)
}

// Disconnect brings the session back to Disconnected from any state.
// It cancels a scan or an in-flight connect, releases subscriptions and the
// link, and returns once Disconnected is reached. Calling it again is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	close(s.interrupt)
	s.interrupt = make(chan struct{})
	s.mu.Unlock()

	for {
		s.mu.Lock()
		switch s.state {
		case Disconnected:
			s.mu.Unlock()
			return nil

		case Disconnecting:
			td := s.teardown
			s.mu.Unlock()
			<-td

		case Scanning:
			run := s.scan
			// onFound may still be running; a Connect it issues from now on is refused
			run.halt = errDisconnectRequested
			s.mu.Unlock()
			run.finish()

		case Connecting, Connected, Subscribing:
			if err := s.cancelAttempt(); err != nil {
				return err
			}

		case Active:
			if err := s.releaseActive(trDisconnect, nil, false); err != nil {
				return err
			}

		default:
			state := s.state
			s.mu.Unlock()
			return newError(KindInvalidTransition, fmt.Errorf("disconnect in state %s", state))
		}
	}
}

// cancelAttempt aborts the outstanding attempt and waits for it to let go of
// the transport. Entered with s.mu held, returns with it released.
func (s *Session) cancelAttempt() error {
	at := s.attempt
	at.canceled = true
	td, err := s.beginTeardown(trDisconnect, nil, false)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.logger.WithField("device", at.handle.ID).Info("Canceling connection attempt")
	at.cancel()
	<-at.done

	s.mu.Lock()
	s.attempt = nil
	s.finishTeardown(td, nil, false)
	s.mu.Unlock()
	return nil
}

// releaseActive tears down the active link. Entered with s.mu held, returns with it released.
func (s *Session) releaseActive(t trigger, cause error, unexpected bool) error {
	link := s.link
	td, err := s.beginTeardown(t, cause, unexpected)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.link = nil
	if s.linkStop != nil {
		close(s.linkStop)
		s.linkStop = nil
	}
	s.mu.Unlock()

	s.releaseLink(link, true)

	s.mu.Lock()
	// a finished cycle invalidates handles from its scan
	s.epoch++
	s.finishTeardown(td, cause, unexpected)
	s.mu.Unlock()

	s.logger.WithField("device", link.Address()).Info("Device session closed")
	return nil
}

// releaseLink removes telemetry subscriptions and closes the link.
func (s *Session) releaseLink(link device.Link, subscribed bool) {
	p := s.opts.Profile
	log := s.logger.WithField("device", link.Address())

	if subscribed {
		for _, char := range []string{p.Timer, p.Status} {
			if err := link.Unsubscribe(p.Service, char); err != nil {
				log.WithError(err).WithField("characteristic", char).Debug("Unsubscribe failed during teardown")
			}
		}
	}
	if err := link.Close(); err != nil {
		log.WithError(err).Debug("Close failed during teardown")
	}
}

// watchLink reports a transport-initiated drop of the active link.
func (s *Session) watchLink(link device.Link, stop <-chan struct{}) {
	groutine.Go(context.Background(), "link-monitor", func(context.Context) {
		select {
		case <-stop:
		case <-link.Disconnected():
			s.mu.Lock()
			if s.link != link || s.state != Active {
				s.mu.Unlock()
				return
			}
			s.logger.WithField("device", link.Address()).Warn("Device dropped the connection")
			if err := s.releaseActive(trDropped, newError(KindTransportFault, errLinkDropped), true); err != nil {
				s.logger.WithError(err).Error("Failed to tear down dropped link")
			}
		}
	})
}

// onNotification decodes one telemetry payload. Anything arriving outside
// Active, or from a link that is no longer current, is discarded.
func (s *Session) onNotification(link device.Link, ch codec.Channel, payload []byte) {
	at := time.Now()
	data := append([]byte(nil), payload...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active || s.link != link {
		s.logger.WithFields(logrus.Fields{"channel": ch, "state": s.state}).Trace("Discarded notification outside active session")
		return
	}

	switch ch {
	case codec.ChannelTimer:
		seconds, err := codec.DecodeTimer(data)
		if err != nil {
			s.decodeFailed(ch, data, err, at)
			return
		}
		s.emit(TimerTick{Seconds: seconds, At: at})

	case codec.ChannelStatus:
		status, err := codec.DecodeStatus(data)
		if err != nil {
			s.decodeFailed(ch, data, err, at)
			return
		}
		s.emit(StatusChanged{Status: status, At: at})
	}
}

func (s *Session) decodeFailed(ch codec.Channel, data []byte, err error, at time.Time) {
	s.logger.WithFields(logrus.Fields{
		"channel": ch,
		"payload": codec.EncodeWireText(data),
	}).WithError(err).Warn("Undecodable notification")
	s.emit(DecodeError{Channel: ch, Payload: data, Err: err, At: at})
}

// SendCommand writes payload to the control attribute.
// Outside Active it fails with ErrNotConnected and nothing is written.
// A write the device refuses fails with ErrCommandFailed and leaves the
// session Active; a write that finds the link already gone fails with
// ErrNotConnected and the drop is reported through Events.
func (s *Session) SendCommand(payload string) error {
	s.mu.Lock()
	if s.state != Active {
		state := s.state
		s.mu.Unlock()
		return newError(KindNotConnected, fmt.Errorf("session is %s", state))
	}
	link := s.link
	s.mu.Unlock()

	data, err := codec.EncodeCommand(payload)
	if err != nil {
		return err
	}

	p := s.opts.Profile
	if err := link.Write(p.Service, p.Control, data, true); err != nil {
		err = device.NormalizeError(err)
		if device.IsConnectionState(err, device.NotConnected) {
			return newError(KindNotConnected, fmt.Errorf("write command: %w", err))
		}
		return newError(KindCommandFailed, fmt.Errorf("write command: %w", err))
	}

	s.logger.WithFields(logrus.Fields{
		"device":  link.Address(),
		"command": payload,
	}).Debug("Command sent")
	return nil
}

// Close disconnects and closes the event stream. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.Disconnect(); err != nil {
		s.logger.WithError(err).Warn("Disconnect failed while closing session")
	}
	s.events.Close()
}
