package worker

// State labels the phase of the acquisition loop for status reporting.
type State string

const (
	StateIdle        State = "idle"
	StateSelecting   State = "selecting"
	StateDiscovering State = "discovering"
	StateFetching    State = "fetching"
	StateTranscoding State = "transcoding"
	StateFinalizing  State = "finalizing"
	StateBackoff     State = "backoff"
	StateStopped     State = "stopped"
)

func (s State) String() string { return string(s) }
