package audio

import (
	"fmt"
	"time"
)

// BlockFunc receives one hardware-delivered block of interleaved samples.
// The slice is reused by the driver once the call returns.
type BlockFunc func(block []float32)

// ErrorFunc receives runtime stream errors, always as a *StreamError.
type ErrorFunc func(err error)

// Capture defines the interface for audio capture
type Capture interface {
	// Open negotiates the stream parameters against the selected device.
	Open() (StreamDescriptor, error)
	// Start begins delivery to onBlock on the driver's own goroutine.
	Start(onBlock BlockFunc, onError ErrorFunc) (*Stream, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	Name     string
	HostAPI  string
	Channels int
	Default  bool
}

// StreamDescriptor is the snapshot of the parameters negotiated at open time.
type StreamDescriptor struct {
	DeviceName      string
	SampleRate      uint32
	Channels        uint16
	FramesPerBuffer int // 0 means the driver picks per block
	Latency         time.Duration
}

// BufferSize renders the frames-per-buffer setting for display.
func (d StreamDescriptor) BufferSize() string {
	if d.FramesPerBuffer == 0 {
		return "default"
	}
	return fmt.Sprintf("%d frames", d.FramesPerBuffer)
}

func (d StreamDescriptor) String() string {
	return fmt.Sprintf("Device: %s\n\tSample Rate: %d Hz\n\tBuffer Size: %s\n\tNum Channels: %d",
		d.DeviceName, d.SampleRate, d.BufferSize(), d.Channels)
}
