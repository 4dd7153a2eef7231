package main

import (
	"testing"

	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/identity"
	"github.com/srg/mazelink/internal/session"
	"github.com/stretchr/testify/suite"
)

type SendTestSuite struct {
	CommandSuite
}

func (s *SendTestSuite) controlWrites() []string {
	control := device.NormalizeUUID(session.DefaultProfile().Control)
	var sent []string
	for _, w := range s.Link.Writes() {
		s.Equal(control, w.Char, "commands MUST go to the control attribute")
		s.True(w.WithResponse, "commands MUST be written with response")
		sent = append(sent, string(w.Data))
	}
	return sent
}

func (s *SendTestSuite) TestSend_ExplicitDevice() {
	// GOAL: Verify send connects to the given address and writes the command
	//
	// TEST SCENARIO: send RESET --device addr → no scan → one control write → device remembered

	out, err := s.ExecuteCommand("send", "RESET", "--device", mazeAddr)
	s.Require().NoError(err, "send MUST succeed")

	s.Contains(out, "Sent RESET to "+mazeAddr)
	s.Equal([]string{"RESET"}, s.controlWrites())
	s.Zero(s.Transport.ScanCount(), "an explicit address MUST NOT trigger a scan")

	id, err := identity.NewStore(s.Dir+"/device.yaml", s.Logger).Load()
	s.Require().NoError(err, "a successful connection MUST be remembered")
	s.Equal(mazeAddr, id.DeviceID)
}

func (s *SendTestSuite) TestSend_RememberedDevice() {
	s.RememberDevice(mazeAddr, mazeName)

	out, err := s.ExecuteCommand("send", "START")
	s.Require().NoError(err)

	s.Contains(out, "Sent START to MazeChallenge_01 (AA:BB:CC:DD:EE:01)")
	s.Equal([]string{"START"}, s.controlWrites())
	s.Zero(s.Transport.ScanCount(), "the remembered device MUST be used without scanning")
}

func (s *SendTestSuite) TestSend_ScansWhenNothingRemembered() {
	// GOAL: Verify send falls back to the first maze device a scan finds
	//
	// TEST SCENARIO: no identity file → scan → first match connected → command written → identity saved with name

	out, err := s.ExecuteCommand("send", "RESET")
	s.Require().NoError(err)

	s.Contains(out, "Sent RESET to MazeChallenge_01 (AA:BB:CC:DD:EE:01)")
	s.Equal(1, s.Transport.ScanCount())
	s.Equal([]string{mazeAddr}, s.Transport.Dialed())

	id, err := identity.NewStore(s.Dir+"/device.yaml", s.Logger).Load()
	s.Require().NoError(err)
	s.Equal(mazeName, id.Name)
}

func (s *SendTestSuite) TestSend_RescanIgnoresRememberedDevice() {
	s.RememberDevice(mazeAddr2, mazeName2)

	_, err := s.ExecuteCommand("send", "RESET", "--rescan")
	s.Require().NoError(err)

	s.Equal(1, s.Transport.ScanCount(), "--rescan MUST scan")
	s.Equal([]string{mazeAddr}, s.Transport.Dialed())
}

func (s *SendTestSuite) TestSend_InvalidCommand() {
	_, err := s.ExecuteCommand("send", "this command is far too long")

	s.EqualError(err, "invalid command: command is 28 bytes, limit is 20")
	s.Zero(s.Transport.DialCount(), "invalid commands MUST be rejected before connecting")
}

func (s *SendTestSuite) TestSend_DeviceOutOfRange() {
	// GOAL: Verify a refused connection is retried and then reported
	//
	// TEST SCENARIO: address has no link → every dial fails → retry policy used up → refused message

	_, err := s.ExecuteCommand("send", "RESET", "--device", otherAddr)
	s.Require().Error(err)

	s.ErrorIs(err, session.ErrConnectRejected)
	s.Equal(2, s.Transport.DialCount(), "a rejected dial MUST be retried per retry.max_attempts")
	s.Contains(FormatUserError(err), "The device refused the connection")
	s.Contains(FormatUserError(err), "not in range")
	s.Empty(s.Link.Writes())
}

func TestSendTestSuite(t *testing.T) {
	suite.Run(t, new(SendTestSuite))
}
