package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// TransportSuite is a testify suite base backed by a FakeTransport.
//
//	type ScanSuite struct {
//	    testutils.TransportSuite
//	}
//
//	func (s *ScanSuite) SetupTest() {
//	    s.TransportSuite.SetupTest() // fresh transport first
//	    s.Transport.Advertise(testutils.NewAdvertisement("AA:BB:CC:DD:EE:01", "MazeChallenge_01", -60))
//	}
type TransportSuite struct {
	suite.Suite

	Helper *TestHelper    // Test helper with logging
	Logger *logrus.Logger // Structured logger for test output

	Transport   *FakeTransport // Replaced before every test
	TestTimeout time.Duration  // Upper bound for waiting on asynchronous results
}

// SetupSuite runs once before all tests in the suite.
func (s *TransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
}

// SetupTest gives every test its own transport.
func (s *TransportSuite) SetupTest() {
	s.Transport = NewFakeTransport()
}

// WaitFor asserts that cond holds within TestTimeout.
func (s *TransportSuite) WaitFor(cond func() bool, msgAndArgs ...interface{}) bool {
	return s.Suite.Eventually(cond, s.TestTimeout, 5*time.Millisecond, msgAndArgs...)
}
