package easyduplex

import "fmt"

// Runstate is the lifecycle phase of a Session.
type Runstate int

const (
	// Idle means there is no connection and no running loop.
	Idle Runstate = iota
	// Connecting means Connect or Accept is in progress.
	Connecting
	// Running means the reader and writer loops are running.
	Running
	// Disconnecting means a disconnect has been scheduled, and Disconnect
	// must be called to bring the session back to Idle.
	Disconnecting
)

func (r Runstate) String() string {
	switch r {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Running:
		return "RUNNING"
	case Disconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("Runstate(%d)", int(r))
	}
}
