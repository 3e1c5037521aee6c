package domain

// Sync actions carried over the direct data channel once a session is
// connected. Fire-and-forget, last-write-wins; no sequencing, no acks.
const (
	SyncPlay   = "play"
	SyncPause  = "pause"
	SyncSeek   = "seek"
	SyncReload = "reload"
)

// SyncMessage is a playback command. Time is the target position in
// seconds and is ignored for "reload".
type SyncMessage struct {
	Action string  `json:"action"`
	Time   float64 `json:"time"`
}
