// Package portaudio adapts the host audio system to the capture and
// playback device interfaces using the PortAudio bindings. The library must
// be initialized once per process before any device is opened.
package portaudio

import (
	"fmt"

	pa "github.com/gordonklaus/portaudio"
)

// Initialize prepares the PortAudio library. Call once at startup, paired
// with Terminate at shutdown.
func Initialize() error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error {
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}
