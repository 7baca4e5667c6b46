package audio

import "errors"

var (
	ErrDeviceUnavailable = errors.New("input device unavailable")
	ErrConfigNegotiation = errors.New("device rejected stream configuration")
	ErrStreamClosed      = errors.New("input stream closed by device")
	ErrInputOverflow     = errors.New("input overflow")
	ErrInputUnderflow    = errors.New("input underflow")
)

// StreamError is what an ErrorFunc receives. Fatal errors mean the device
// stopped delivering and the stream will not recover.
type StreamError struct {
	Err   error
	Fatal bool
}

func (e *StreamError) Error() string {
	if e.Fatal {
		return "fatal stream error: " + e.Err.Error()
	}
	return "stream error: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }
