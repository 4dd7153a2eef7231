package summary

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/session"
)

// DefaultBatteryLevel is reported while the device publishes no battery reading.
const DefaultBatteryLevel = 100

// Snapshot is the tracker's view of one game at a point in time.
type Snapshot struct {
	SessionID string
	Record    Record
	Status    codec.Status
	Elapsed   time.Duration
	Active    bool
}

// Tracker folds session events for one device into a Record.
// PLAYING arms the alarm, COMPLETED marks the maze solved and the hall
// sensor tripped, IDLE and READY start a fresh game. Timer ticks set
// the elapsed time. Safe for concurrent use.
type Tracker struct {
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	sessionID string
	deviceID  string
	status    codec.Status
	elapsed   time.Duration
	active    bool
	alarm     bool
	completed bool
	hall      bool
}

// NewTracker creates a tracker for deviceID. A nil logger uses logrus.New().
func NewTracker(deviceID string, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		logger:    logger,
		now:       time.Now,
		sessionID: uuid.NewString(),
		deviceID:  deviceID,
	}
}

// SessionID identifies this tracker's game session in logs and the live feed
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Apply folds ev into the tracked state. It reports whether the backend
// record changed, which is when a status worth delivering was produced.
func (t *Tracker) Apply(ev session.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case session.TimerTick:
		t.elapsed = time.Duration(e.Seconds) * time.Second
		return false

	case session.StatusChanged:
		return t.applyStatus(e.Status)

	case session.StateChanged:
		wasActive := t.active
		t.active = e.To == session.Active
		if wasActive && !t.active {
			t.alarm = false
			t.logger.WithFields(logrus.Fields{
				"session_id": t.sessionID,
				"device_id":  t.deviceID,
				"unexpected": e.Unexpected,
			}).Debug("Game session ended")
			return true
		}
		return false

	default:
		return false
	}
}

func (t *Tracker) applyStatus(st codec.Status) bool {
	before := [3]bool{t.alarm, t.completed, t.hall}
	t.status = st

	switch st.Kind {
	case codec.StatusIdle, codec.StatusReady:
		t.alarm, t.completed, t.hall = false, false, false
		t.elapsed = 0
	case codec.StatusPlaying:
		t.alarm = true
	case codec.StatusCompleted:
		t.alarm, t.completed, t.hall = false, true, true
	case codec.StatusError:
		t.alarm = false
	default:
		t.logger.WithFields(logrus.Fields{
			"session_id": t.sessionID,
			"status":     st.Raw,
		}).Debug("Ignoring unrecognised status")
		return false
	}

	return before != [3]bool{t.alarm, t.completed, t.hall}
}

// Record returns the backend record for the current state, stamped now.
func (t *Tracker) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordLocked()
}

func (t *Tracker) recordLocked() Record {
	return Record{
		DeviceID:        t.deviceID,
		AlarmActive:     t.alarm,
		MazeCompleted:   t.completed,
		HallSensorValue: t.hall,
		BatteryLevel:    DefaultBatteryLevel,
		Timestamp:       t.now().UTC().Format(time.RFC3339),
	}
}

// Snapshot returns the full tracked state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		SessionID: t.sessionID,
		Record:    t.recordLocked(),
		Status:    t.status,
		Elapsed:   t.elapsed,
		Active:    t.active,
	}
}
