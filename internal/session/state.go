package session

// State is the lifecycle position of a Session
type State int

const (
	Disconnected State = iota
	Scanning
	Connecting
	Connected
	Subscribing
	Active
	Disconnecting
)

// States lists every state in lifecycle order
var States = []State{Disconnected, Scanning, Connecting, Connected, Subscribing, Active, Disconnecting}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Disconnecting:
		return "disconnecting"
	default:
		return "invalid"
	}
}

// trigger is the cause of a state transition
type trigger int

const (
	trStartScan trigger = iota
	trMatched
	trScanEnded
	trConnect
	trLinked
	trResolved
	trConnectFailed
	trSubscribed
	trSubscribeFailed
	trDisconnect
	trDropped
	trTornDown
)

var triggers = []trigger{
	trStartScan, trMatched, trScanEnded, trConnect, trLinked, trResolved,
	trConnectFailed, trSubscribed, trSubscribeFailed, trDisconnect, trDropped, trTornDown,
}

func (t trigger) String() string {
	switch t {
	case trStartScan:
		return "start-scan"
	case trMatched:
		return "device-matched"
	case trScanEnded:
		return "scan-ended"
	case trConnect:
		return "connect"
	case trLinked:
		return "link-established"
	case trResolved:
		return "capabilities-resolved"
	case trConnectFailed:
		return "connect-failed"
	case trSubscribed:
		return "subscribed"
	case trSubscribeFailed:
		return "subscribe-failed"
	case trDisconnect:
		return "disconnect"
	case trDropped:
		return "link-dropped"
	case trTornDown:
		return "teardown-complete"
	default:
		return "unknown"
	}
}

type edge struct {
	from State
	on   trigger
}

// transitions is the complete lifecycle; anything absent is refused.
var transitions = map[edge]State{
	{Disconnected, trStartScan}: Scanning,
	{Scanning, trMatched}:       Scanning,
	{Scanning, trScanEnded}:     Disconnected,

	{Disconnected, trConnect}: Connecting,
	{Scanning, trConnect}:     Connecting,
	{Connecting, trLinked}:    Connected,
	{Connected, trResolved}:   Subscribing,

	{Connecting, trConnectFailed}: Disconnected,
	{Connected, trConnectFailed}:  Disconnected,

	{Subscribing, trSubscribed}:      Active,
	{Subscribing, trSubscribeFailed}: Disconnected,

	{Connecting, trDisconnect}:  Disconnecting,
	{Connected, trDisconnect}:   Disconnecting,
	{Subscribing, trDisconnect}: Disconnecting,
	{Active, trDisconnect}:      Disconnecting,
	{Active, trDropped}:         Disconnecting,

	{Disconnecting, trTornDown}: Disconnected,
}

// next returns the state reached from s on t, or false if the transition is not allowed.
func next(s State, t trigger) (State, bool) {
	to, ok := transitions[edge{s, t}]
	return to, ok
}
