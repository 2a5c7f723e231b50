package session

// Progress is the state pushed to the UI host on every change.
type Progress struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// Host is the UI surface driven by the controller. Implementations must
// not call mutating Controller methods synchronously from these callbacks.
type Host interface {
	// ProgressChanged is called after every stage or progress change, in
	// order.
	ProgressChanged(p Progress)
	// CloseRequested asks the host to close the migration surface after a
	// cancellation.
	CloseRequested()
}

// NopHost ignores every notification.
type NopHost struct{}

func (NopHost) ProgressChanged(Progress) {}
func (NopHost) CloseRequested()          {}

// Progress windows of the migration stage, in percent.
const (
	prepareStart  = 0
	prepareEnd    = 50
	executeEnd    = 90
	markerWriting = 90
	finished      = 100
)
