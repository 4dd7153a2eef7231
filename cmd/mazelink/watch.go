package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/livefeed"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/internal/summary"
	"github.com/srg/mazelink/pkg/config"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect to a maze device and follow the game live",
	Long: `Connect to a maze device and print its game timer and status as they change.

The device is chosen in this order: --device, the device remembered from the
last successful session, or the first maze device a scan finds. A lost
connection is re-established automatically. Game results are queued locally
and sent to the status backend; with live_feed.listen configured (or --feed)
the session is also streamed to WebSocket dashboards.`,
	RunE: runWatch,
}

var (
	watchDevice     string
	watchRescan     bool
	watchFeed       string
	watchNoUpload   bool
	watchUntilDone  bool
	watchReconnects int
)

func init() {
	watchCmd.Flags().StringVar(&watchDevice, "device", "", "Device address to connect to")
	watchCmd.Flags().BoolVar(&watchRescan, "rescan", false, "Ignore the remembered device and scan")
	watchCmd.Flags().StringVar(&watchFeed, "feed", "", "Serve the live feed on this address (overrides live_feed.listen)")
	watchCmd.Flags().BoolVar(&watchNoUpload, "no-upload", false, "Do not send game results to the backend")
	watchCmd.Flags().BoolVar(&watchUntilDone, "until-complete", false, "Exit once the maze is completed")
	watchCmd.Flags().IntVar(&watchReconnects, "reconnects", 3, "How many times to re-establish a lost connection")
}

// watcher fans the session event stream out to its consumers.
type watcher struct {
	out           *renderer
	tracker       *summary.Tracker
	hub           *livefeed.Hub
	sink          *resultSink
	logger        *logrus.Logger
	now           func() time.Time
	untilComplete bool
}

// handle processes one event and reports whether the game just completed.
func (w *watcher) handle(ctx context.Context, ev session.Event) bool {
	w.out.event(ev, w.now())
	if w.hub != nil {
		w.hub.Publish(ev)
	}
	if w.tracker.Apply(ev) && w.sink != nil {
		w.sink.deliver(ctx, w.tracker.Record())
	}
	sc, ok := ev.(session.StatusChanged)
	return ok && sc.Status.Kind == codec.StatusCompleted
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newRenderer(cmd.OutOrStdout(), isTerminal(cmd.OutOrStdout()))

	conn, _, err := connect(ctx, cfg, logger, watchDevice, watchRescan)
	if err != nil {
		return err
	}
	defer conn.Close()

	deviceID, _ := conn.session.DeviceID()
	w := &watcher{
		out:           out,
		tracker:       summary.NewTracker(deviceID, logger),
		logger:        logger,
		now:           time.Now,
		untilComplete: watchUntilDone,
	}

	if !watchNoUpload {
		sink, err := openResultSink(cfg, logger)
		if err != nil {
			return err
		}
		defer sink.Close()
		w.sink = sink
	}

	if listen := feedAddress(cfg); listen != "" {
		w.hub = livefeed.NewHub(logger)
		w.hub.SetSession(w.tracker.SessionID(), deviceID)
		feed, err := startFeed(ctx, listen, cfg.LiveFeed.Path, w.hub, logger)
		if err != nil {
			return fmt.Errorf("failed to start live feed: %w", err)
		}
		defer feed.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Live feed on ws://%s%s\n", feed.addr, cfg.LiveFeed.Path)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, press Ctrl+C to stop\n", conn.handle)

	err = w.run(ctx, conn.session, device.HandleFromID(deviceID, conn.handle.Name), cfg.RetryPolicy(), watchReconnects)
	out.summary(w.tracker.Snapshot())
	return err
}

// run consumes events until ctx is done, the game completes (with
// --until-complete) or a lost connection cannot be re-established.
func (w *watcher) run(ctx context.Context, sess *session.Session, h device.Handle, policy session.RetryPolicy, reconnects int) error {
	lost := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sess.Events():
			if !ok {
				return nil
			}
			if w.handle(ctx, ev) && w.untilComplete {
				return nil
			}

			sc, isState := ev.(session.StateChanged)
			if !isState {
				continue
			}
			if sc.Unexpected {
				lost = true
			}
			if !lost || sc.To != session.Disconnected {
				continue
			}

			lost = false
			if reconnects <= 0 {
				return ErrConnectionLost
			}
			reconnects--
			w.logger.WithField("device", h.ID).Info("Reconnecting")
			if err := sess.ConnectWithRetry(ctx, h, policy); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		}
	}
}

func feedAddress(cfg *config.Config) string {
	if watchFeed != "" {
		return watchFeed
	}
	return cfg.LiveFeed.Listen
}
