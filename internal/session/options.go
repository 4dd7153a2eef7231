package session

import (
	"time"

	"github.com/srg/mazelink/internal/discovery"
)

// Profile names the GATT attributes of a maze device
type Profile struct {
	Service string
	Status  string
	Timer   string
	Control string
}

// DefaultProfile returns the attribute layout of the MazeChallenge firmware.
func DefaultProfile() Profile {
	return Profile{
		Service: "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
		Status:  "beb5483e-36e1-4688-b7f5-ea07361b26a8",
		Timer:   "beb5483e-36e1-4688-b7f5-ea07361b26a9",
		Control: "beb5483e-36e1-4688-b7f5-ea07361b26aa",
	}
}

// Options configure a Session. Zero fields take the defaults.
type Options struct {
	Profile        Profile
	NameFilter     string
	ScanWindow     time.Duration
	ConnectTimeout time.Duration
	EventBuffer    int
}

const (
	DefaultScanWindow     = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultEventBuffer    = 256
)

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	return &Options{
		Profile:        DefaultProfile(),
		NameFilter:     discovery.DefaultNameFilter,
		ScanWindow:     DefaultScanWindow,
		ConnectTimeout: DefaultConnectTimeout,
		EventBuffer:    DefaultEventBuffer,
	}
}

func (o *Options) withDefaults() Options {
	d := DefaultOptions()
	if o == nil {
		return *d
	}
	out := *o
	if out.Profile == (Profile{}) {
		out.Profile = d.Profile
	}
	if out.NameFilter == "" {
		out.NameFilter = d.NameFilter
	}
	if out.ScanWindow <= 0 {
		out.ScanWindow = d.ScanWindow
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = d.ConnectTimeout
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = d.EventBuffer
	}
	return out
}

// RetryPolicy bounds ConnectWithRetry.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // backoff before the second attempt
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth per attempt
	Timeout      time.Duration // per-attempt connect timeout; zero uses Options.ConnectTimeout
}

// DefaultRetryPolicy returns a policy of three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the backoff to wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}
