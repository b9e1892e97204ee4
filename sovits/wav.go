package sovits

import (
	"bytes"
	"errors"

	"github.com/go-audio/wav"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// WAVSampleRate checks the RIFF/WAVE header and returns the sample rate from
// the fmt chunk. Sample data is not decoded.
func WAVSampleRate(data []byte) (int, error) {
	if len(data) < 12 || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0, ErrNotWAV
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if d.Err() != nil || d.SampleRate == 0 || d.NumChans == 0 {
		return 0, ErrNotWAV
	}
	return int(d.SampleRate), nil
}
