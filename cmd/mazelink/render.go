package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/internal/summary"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"
)

// renderer prints session output for humans, coloured when writing to a terminal.
type renderer struct {
	w     io.Writer
	good  *color.Color
	warn  *color.Color
	bad   *color.Color
	faint *color.Color
	bold  *color.Color
}

func newRenderer(w io.Writer, colorize bool) *renderer {
	r := &renderer{
		w:     w,
		good:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		faint: color.New(color.Faint),
		bold:  color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.good, r.warn, r.bad, r.faint, r.bold} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// isTerminal reports whether w is an interactive terminal that accepts colour.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// formatElapsed renders game time as mm:ss
func formatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (r *renderer) statusColor(kind codec.StatusKind) *color.Color {
	switch kind {
	case codec.StatusCompleted, codec.StatusReady:
		return r.good
	case codec.StatusPlaying:
		return r.warn
	case codec.StatusError:
		return r.bad
	default:
		return r.faint
	}
}

// event prints one session event as a single line stamped with at.
func (r *renderer) event(ev session.Event, at time.Time) {
	stamp := r.faint.Sprintf("[%s]", at.Format("15:04:05"))

	switch e := ev.(type) {
	case session.TimerTick:
		fmt.Fprintf(r.w, "%s timer   %s\n", stamp, formatElapsed(time.Duration(e.Seconds)*time.Second))
	case session.StatusChanged:
		fmt.Fprintf(r.w, "%s status  %s\n", stamp, r.statusColor(e.Status.Kind).Sprint(strings.ToUpper(e.Status.String())))
	case session.DecodeError:
		fmt.Fprintf(r.w, "%s %s %s\n", stamp, r.warn.Sprint("warning"), e)
	case session.StateChanged:
		line := fmt.Sprintf("%s -> %s", e.From, e.To)
		switch {
		case e.Unexpected:
			line = r.bad.Sprint(line + " (connection lost)")
		case e.To == session.Active:
			line = r.good.Sprint(line)
		}
		if e.Err != nil {
			line += ": " + e.Err.Error()
		}
		fmt.Fprintf(r.w, "%s state   %s\n", stamp, line)
	}
}

// summary prints the game result block shown when a watch ends.
func (r *renderer) summary(snap summary.Snapshot) {
	rec := snap.Record
	outcome := r.warn.Sprint("not finished")
	if rec.MazeCompleted {
		outcome = r.good.Sprint("completed")
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, r.bold.Sprint("Game summary"))
	fmt.Fprintf(w, "Device\t%s\n", rec.DeviceID)
	fmt.Fprintf(w, "Session\t%s\n", snap.SessionID)
	fmt.Fprintf(w, "Outcome\t%s\n", outcome)
	fmt.Fprintf(w, "Time\t%s\n", formatElapsed(snap.Elapsed))
	fmt.Fprintf(w, "Last status\t%s\n", snap.Status)
	_ = w.Flush()
}

type scanEntry struct {
	Name string `json:"name"`
	RSSI int    `json:"rssi"`
}

// devices prints the scan result in discovery order.
func (r *renderer) devices(found *orderedmap.OrderedMap[string, device.Handle], format string) error {
	if format == "json" {
		out := orderedmap.New[string, scanEntry]()
		for pair := found.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, scanEntry{Name: pair.Value.Name, RSSI: pair.Value.RSSI})
		}
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if found.Len() == 0 {
		fmt.Fprintln(r.w, "No maze devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 48))
	for pair := found.Oldest(); pair != nil; pair = pair.Next() {
		h := pair.Value
		name := h.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, h.ID, h.RSSI)
	}
	return w.Flush()
}
