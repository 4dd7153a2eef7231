package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/internal/summary"
	"github.com/srg/mazelink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var renderAt = time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)

func TestRenderer_Events(t *testing.T) {
	// GOAL: Verify every event kind renders as one stamped line
	//
	// TEST SCENARIO: timer, known and unknown status, decode warning, state changes → fixed lines without colour

	var buf bytes.Buffer
	r := newRenderer(&buf, false)

	r.event(session.TimerTick{Seconds: 125}, renderAt)
	r.event(session.StatusChanged{Status: codec.ParseStatus("PLAYING")}, renderAt)
	r.event(session.StatusChanged{Status: codec.ParseStatus("BOOT")}, renderAt)
	r.event(session.StateChanged{From: session.Subscribing, To: session.Active}, renderAt)
	r.event(session.StateChanged{From: session.Active, To: session.Disconnecting, Err: errors.New("link dropped"), Unexpected: true}, renderAt)

	testutils.NewTextAsserter(t).Assert(buf.String(), `
[12:00:05] timer   02:05
[12:00:05] status  PLAYING
[12:00:05] status  UNKNOWN(BOOT)
[12:00:05] state   subscribing -> active
[12:00:05] state   active -> disconnecting (connection lost): link dropped
`)
}

func TestRenderer_DecodeWarning(t *testing.T) {
	var buf bytes.Buffer
	_, err := codec.DecodeTimer([]byte("abc"))
	require.Error(t, err)

	newRenderer(&buf, false).event(session.DecodeError{Channel: codec.ChannelTimer, Payload: []byte("abc"), Err: err}, renderAt)

	assert.Contains(t, buf.String(), "[12:00:05] warning undecodable timer payload")
}

func TestRenderer_Summary(t *testing.T) {
	var buf bytes.Buffer
	newRenderer(&buf, false).summary(summary.Snapshot{
		SessionID: "3f1c",
		Record: summary.Record{
			DeviceID:        mazeAddr,
			MazeCompleted:   true,
			HallSensorValue: true,
			BatteryLevel:    100,
		},
		Status:  codec.ParseStatus("COMPLETED"),
		Elapsed: 65 * time.Second,
	})

	testutils.NewTextAsserter(t).Assert(buf.String(), `
Game summary
Device       AA:BB:CC:DD:EE:01
Session      3f1c
Outcome      completed
Time         01:05
Last status  completed
`)
}

func TestRenderer_SummaryUnfinished(t *testing.T) {
	var buf bytes.Buffer
	newRenderer(&buf, false).summary(summary.Snapshot{Record: summary.Record{DeviceID: mazeAddr}})
	assert.Regexp(t, `Outcome\s+not finished`, buf.String())
}

func TestRenderer_Devices(t *testing.T) {
	found := orderedmap.New[string, device.Handle]()
	found.Set(mazeAddr, device.Handle{ID: mazeAddr, Name: mazeName, RSSI: -55})
	found.Set(mazeAddr2, device.Handle{ID: mazeAddr2, Name: "MazeChallenge_Prototype_Lab", RSSI: -70})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, newRenderer(&buf, false).devices(found, "table"))

		testutils.NewTextAsserter(t).Assert(buf.String(), `
NAME  ADDRESS  RSSI
------------------------------------------------
MazeChallenge_01          AA:BB:CC:DD:EE:01  -55 dBm
MazeChallenge_Prototy...  AA:BB:CC:DD:EE:02  -70 dBm
`)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, newRenderer(&buf, false).devices(found, "json"))

		testutils.NewJSONAsserter(t).Assert(buf.String(), `{
			"AA:BB:CC:DD:EE:01": {"name": "MazeChallenge_01", "rssi": -55},
			"AA:BB:CC:DD:EE:02": {"name": "MazeChallenge_Prototype_Lab", "rssi": -70}
		}`)
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, newRenderer(&buf, false).devices(orderedmap.New[string, device.Handle](), "table"))
		assert.Equal(t, "No maze devices discovered\n", buf.String())
	})
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", formatElapsed(0))
	assert.Equal(t, "00:59", formatElapsed(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "10:00", formatElapsed(10*time.Minute))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}), "buffers MUST never be coloured")
}
