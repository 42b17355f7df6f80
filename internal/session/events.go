package session

import "fmt"

// State is the lifecycle phase of the audio session.
type State int

const (
	// StateIdle means no session is active and a new recording may start.
	StateIdle State = iota
	// StateRecording means the capture pipeline is running and packets
	// accumulate in the store.
	StateRecording
	// StateDecoding means capture has stopped and the stored packets are
	// being decoded.
	StateDecoding
	// StatePlaying means decoded audio is rendering on the output device.
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDecoding:
		return "decoding"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MarshalText lets the state render as its name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "recording":
		*s = StateRecording
	case "decoding":
		*s = StateDecoding
	case "playing":
		*s = StatePlaying
	default:
		return fmt.Errorf("session: unknown state %q", text)
	}
	return nil
}

// StatusEvent is one observable snapshot of the session, published on every
// state transition.
type StatusEvent struct {
	// SessionID identifies the session the event belongs to. Empty while
	// idle with no prior session.
	SessionID string `json:"session_id,omitempty"`
	// State is the phase the session just entered.
	State State `json:"state"`
	// Status is a short human-readable description of the phase.
	Status string `json:"status"`
	// RecordingActive reports whether the capture pipeline is running.
	RecordingActive bool `json:"recording_active"`
	// PlaybackActive reports whether the playback pipeline is rendering.
	PlaybackActive bool `json:"playback_active"`
	// Packets is the number of encoded packets held by the store at the
	// time of the transition.
	Packets int `json:"packets"`
}

func statusText(s State) string {
	switch s {
	case StateRecording:
		return "recording"
	case StateDecoding:
		return "processing"
	case StatePlaying:
		return "playing"
	default:
		return "ready"
	}
}
