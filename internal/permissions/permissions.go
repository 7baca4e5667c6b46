package permissions

import "errors"

// ErrMicrophoneDenied means capture would only ever deliver silence.
var ErrMicrophoneDenied = errors.New("microphone permission not granted; allow it under System Settings → Privacy & Security → Microphone")
