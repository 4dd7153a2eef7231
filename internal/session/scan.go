package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/discovery"
	"github.com/srg/mazelink/internal/groutine"
)

// foundQueue bounds the matches waiting for the onFound callback
const foundQueue = 16

type scanRun struct {
	epoch      uint64
	candidates *discovery.Candidates
	cancel     context.CancelFunc
	released   chan struct{}   // closed once the transport scan returned
	dispatched <-chan struct{} // closed once onFound has seen every queued match
	done       <-chan struct{} // closed after the final transition
	halt       error           // set by StopScan or Disconnect, guarded by Session.mu
}

// stop cancels the scan and waits until the radio is released.
// Safe to call from onFound.
func (r *scanRun) stop() {
	r.cancel()
	<-r.released
}

// finish cancels the scan and waits until it has reported its end.
// onFound must not call it.
func (r *scanRun) finish() {
	r.cancel()
	<-r.done
}

// StartScan starts discovery and returns immediately.
//
// Every device admitted by filter is passed to onFound at most once per scan.
// The scan ends on its own after window (zero means Options.ScanWindow), on
// StopScan, Disconnect or Connect, or when ctx is canceled. A nil filter
// matches Options.NameFilter. onFound runs on a dedicated goroutine and may
// call Connect, but not StopScan or Disconnect. Once StopScan or Disconnect
// has been called, a Connect from onFound fails with ErrConnectCanceled.
// The StateChanged that ends the scan is emitted after the last onFound call
// has returned.
func (s *Session) StartScan(ctx context.Context, filter discovery.Filter, window time.Duration, onFound func(device.Handle)) error {
	if filter == nil {
		filter = discovery.NameContains(s.opts.NameFilter)
	}
	if window <= 0 {
		window = s.opts.ScanWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return newError(KindBusy, errClosed)
	case s.state == Scanning:
		return ErrAlreadyScanning
	case s.state != Disconnected:
		return newError(KindBusy, fmt.Errorf("session is %s", s.state))
	}

	if err := s.transition(trStartScan, nil, false); err != nil {
		return err
	}

	// a new scan invalidates handles from earlier ones
	s.epoch++

	scanCtx, cancel := context.WithTimeout(ctx, window)
	run := &scanRun{
		epoch:      s.epoch,
		candidates: discovery.NewCandidates(),
		cancel:     cancel,
		released:   make(chan struct{}),
	}
	s.scan = run

	var found chan device.Handle
	if onFound != nil {
		found = make(chan device.Handle, foundQueue)
		run.dispatched = groutine.Start(scanCtx, "scan-dispatch", func(ctx context.Context) {
			for {
				select {
				case h := <-found:
					onFound(h)
				case <-ctx.Done():
					// matches queued before the window closed are still reported
					for {
						select {
						case h := <-found:
							onFound(h)
						default:
							return
						}
					}
				}
			}
		})
	}

	run.done = groutine.Start(scanCtx, "scan", func(ctx context.Context) {
		s.runScan(ctx, run, filter, found)
	})

	s.logger.WithFields(logrus.Fields{
		"window": window,
	}).Info("Scanning for devices")
	return nil
}

func (s *Session) runScan(ctx context.Context, run *scanRun, filter discovery.Filter, found chan<- device.Handle) {
	err := s.transport.Scan(ctx, func(adv device.Advertisement) {
		if !filter(adv) {
			return
		}
		h := device.NewHandle(adv, run.epoch)
		if !run.candidates.Admit(h) {
			return
		}

		s.mu.Lock()
		current := s.scan == run
		if current {
			_ = s.transition(trMatched, nil, false)
		}
		s.mu.Unlock()

		if !current {
			return
		}

		s.logger.WithFields(logrus.Fields{
			"device": h.ID,
			"name":   h.Name,
			"rssi":   h.RSSI,
		}).Info("Found device")

		if found == nil {
			return
		}
		select {
		case found <- h:
		case <-ctx.Done():
		}
	})
	run.cancel()
	close(run.released)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	// The end of the scan is reported only after onFound has caught up.
	// A Connect issued from onFound detaches the run first, so waiting here
	// cannot block it.
	if run.dispatched != nil {
		<-run.dispatched
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Connect detaches the scan it preempts; nothing left to report then.
	if s.scan != run {
		return
	}
	s.scan = nil

	var cause error
	if err != nil {
		cause = newError(KindTransportFault, fmt.Errorf("scan: %w", err))
		s.logger.WithError(err).Warn("Scan failed")
	}
	_ = s.transition(trScanEnded, cause, false)

	s.logger.WithField("devices", run.candidates.Len()).Debug("Scan finished")
}

// StopScan ends a running scan and waits until its end has been reported.
// It must not be called from onFound.
func (s *Session) StopScan() {
	s.mu.Lock()
	run := s.scan
	if run != nil {
		run.halt = errScanStopped
	}
	s.mu.Unlock()

	if run != nil {
		run.finish()
	}
}
