package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/wavtap/internal/config"
)

type portAudioCapture struct {
	cfg    config.AudioConfig
	params *portaudio.StreamParameters
	stream *Stream
}

// New creates a new PortAudio-based audio capture
func New(cfg config.AudioConfig) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{cfg: cfg}, nil
}

// defaultChannels caps the channel count when the config leaves it unset.
// Virtual devices such as ALSA "default" or "pulse" advertise dozens of inputs.
const defaultChannels = 2

func (p *portAudioCapture) Open() (StreamDescriptor, error) {
	device, err := p.findDevice()
	if err != nil {
		return StreamDescriptor{}, err
	}

	params, desc, err := streamParams(device, p.cfg)
	if err != nil {
		return StreamDescriptor{}, err
	}
	if err := portaudio.IsFormatSupported(params, p.deliver); err != nil {
		return StreamDescriptor{}, fmt.Errorf("%w: %d Hz, %d channels: %w",
			ErrConfigNegotiation, desc.SampleRate, desc.Channels, err)
	}

	p.params = &params
	return desc, nil
}

// streamParams resolves cfg against what device offers.
func streamParams(device *portaudio.DeviceInfo, cfg config.AudioConfig) (portaudio.StreamParameters, StreamDescriptor, error) {
	channels := min(defaultChannels, device.MaxInputChannels)
	if cfg.Channels > 0 {
		channels = cfg.Channels
	}
	if channels < 1 || channels > device.MaxInputChannels || channels > math.MaxUint16 {
		return portaudio.StreamParameters{}, StreamDescriptor{}, fmt.Errorf("%w: %d channels requested, device has %d",
			ErrConfigNegotiation, channels, device.MaxInputChannels)
	}

	sampleRate := device.DefaultSampleRate
	if cfg.SampleRate > 0 {
		sampleRate = float64(cfg.SampleRate)
	}
	if sampleRate < 1 || sampleRate > math.MaxUint32 {
		return portaudio.StreamParameters{}, StreamDescriptor{}, fmt.Errorf("%w: sample rate %v Hz",
			ErrConfigNegotiation, sampleRate)
	}

	latency := device.DefaultLowInputLatency
	if cfg.Latency == config.LatencyHigh {
		latency = device.DefaultHighInputLatency
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = portaudio.FramesPerBufferUnspecified
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: frames,
	}
	desc := StreamDescriptor{
		DeviceName:      device.Name,
		SampleRate:      uint32(sampleRate),
		Channels:        uint16(channels),
		FramesPerBuffer: max(cfg.FramesPerBuffer, 0),
		Latency:         latency,
	}
	return params, desc, nil
}

func (p *portAudioCapture) findDevice() (*portaudio.DeviceInfo, error) {
	if p.cfg.Device == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get default input device: %w", ErrDeviceUnavailable, err)
		}
		return pickDevice(nil, device, "")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate devices: %w", ErrDeviceUnavailable, err)
	}
	return pickDevice(devices, nil, p.cfg.Device)
}

// pickDevice returns the input device called name, or def when name is empty.
func pickDevice(devices []*portaudio.DeviceInfo, def *portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if def == nil || def.MaxInputChannels < 1 {
			return nil, fmt.Errorf("%w: no default input device", ErrDeviceUnavailable)
		}
		return def, nil
	}

	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, name)
}

// deliver is the PortAudio callback. It runs on the PortAudio thread.
func (p *portAudioCapture) deliver(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	p.stream.Deliver(in, BlockStatus{
		Overflow:  flags&portaudio.InputOverflow != 0,
		Underflow: flags&portaudio.InputUnderflow != 0,
	})
}

// paControl adapts a PortAudio stream to StreamControl.
type paControl struct {
	stream *portaudio.Stream
}

func (c *paControl) Stop() error {
	err := c.stream.Stop()
	if errors.Is(err, portaudio.StreamIsStopped) {
		return nil
	}
	return err
}

func (c *paControl) Close() error { return c.stream.Close() }

func (p *portAudioCapture) Start(onBlock BlockFunc, onError ErrorFunc) (*Stream, error) {
	if p.params == nil {
		return nil, errors.New("audio: Start called before Open")
	}
	if p.stream != nil {
		return nil, errors.New("audio: stream already started")
	}

	ctl := &paControl{}
	p.stream = NewStream(ctl, onBlock, onError)

	stream, err := portaudio.OpenStream(*p.params, p.deliver)
	if err != nil {
		p.stream = nil
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	ctl.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		p.stream = nil
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.stream.Watch(p.cfg.StallTimeout)
	return p.stream, nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			dev := AudioDevice{
				Name:     d.Name,
				Channels: d.MaxInputChannels,
				Default:  d == defaultDevice,
			}
			if d.HostApi != nil {
				dev.HostAPI = d.HostApi.Name
			}
			result = append(result, dev)
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	if p.stream != nil {
		p.stream.Stop()
	}
	return portaudio.Terminate()
}
