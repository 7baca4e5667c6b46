package wavfile

import "errors"

var (
	ErrFileCreate = errors.New("cannot create WAV file")
	ErrWrite      = errors.New("cannot write WAV file")
	ErrNotWav     = errors.New("not a WAV file")
)
