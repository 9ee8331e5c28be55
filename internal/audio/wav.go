// Package audio provides WAV encode/decode for the float32 PCM samples
// the engines and backend adapters pass between themselves, grounded on
// CWBudde-go-pocket-tts's internal/audio/{encode,decode}.go. Unlike that
// teacher (fixed 24 kHz mono), the sample rate here is model-defined and
// carried alongside the samples (spec.md §3 AudioData).
package audio

import (
	"bytes"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/cwbudde/wav"
)

const bitDepth = 16
const channels = 1

// ErrEmptyWAV is returned when decoding zero-length input.
var ErrEmptyWAV = errors.New("empty WAV input")

// ErrUnsupportedFormat is returned for WAV files this decoder cannot
// represent as mono float32 PCM (e.g. multi-channel audio).
var ErrUnsupportedFormat = errors.New("unsupported WAV format")

// EncodeWAV encodes float32 PCM samples (each in [-1, 1]) as a mono
// 16-bit PCM WAV byte slice at the given sample rate.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	var buf bytes.Buffer
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, sampleRate, bitDepth, channels, 1)
	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes WAV bytes into mono float32 PCM samples and the
// file's sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyWAV
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedFormat)
	}
	if dec.NumChans > 1 {
		return nil, 0, fmt.Errorf("%w: %d channels, want mono", ErrUnsupportedFormat, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}
	return buf.Data, int(dec.SampleRate), nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker, which
// wav.NewEncoder requires to backpatch RIFF/data chunk sizes on Close.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}
	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int
	switch whence {
	case 0:
		newPos = int(offset)
	case 1:
		newPos = s.pos + int(offset)
	case 2:
		newPos = s.buf.Len() + int(offset)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	s.pos = newPos
	return int64(newPos), nil
}
