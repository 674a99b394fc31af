// Package audio decodes compressed or PCM tracks into mono signals and
// derives the perceptual features used by the classifier.
package audio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Format identifies a container/codec we can decode.
type Format string

// Supported formats.
const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// ContentType returns the MIME type stored alongside uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// FormatFromName maps a file name's extension to a Format.
func FormatFromName(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return FormatMP3, true
	case ".wav", ".wave":
		return FormatWAV, true
	}
	return "", false
}

// DetectFormat sniffs head (the first bytes of the file) and falls back to
// the extension of name. The header wins when both are present.
func DetectFormat(name string, head []byte) (Format, error) {
	switch {
	case len(head) >= 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(head) >= 3 && string(head[0:3]) == "ID3":
		return FormatMP3, nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	if f, ok := FormatFromName(name); ok {
		return f, nil
	}
	return "", decodeErrf("audio.detect", ErrUnsupportedFormat, "%q", name)
}

// Signal is a mono waveform with samples in [-1, 1].
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the signal.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// Decode reads a whole track of the given format from r.
func Decode(format Format, r io.Reader) (Signal, error) {
	switch format {
	case FormatMP3:
		return decodeMP3(r)
	case FormatWAV:
		return decodeWAV(r)
	default:
		return Signal{}, decodeErrf("audio.decode", ErrUnsupportedFormat, "%q", string(format))
	}
}

// DecodeFile opens path, detects its format and decodes it.
func DecodeFile(path string) (Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return Signal{}, decodeErr("audio.decode_file", err)
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Signal{}, decodeErr("audio.decode_file", err)
	}
	if n == 0 {
		return Signal{}, decodeErr("audio.decode_file", ErrEmptySignal)
	}
	format, err := DetectFormat(path, head[:n])
	if err != nil {
		return Signal{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Signal{}, decodeErr("audio.decode_file", err)
	}
	return Decode(format, f)
}

// decodeMP3 mixes go-mp3's 16-bit little-endian stereo output down to mono.
func decodeMP3(r io.Reader) (Signal, error) {
	const op = "audio.decode_mp3"
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return Signal{}, decodeErr(op, err)
	}
	sr := d.SampleRate()
	if sr <= 0 {
		return Signal{}, decodeErrf(op, ErrBadSampleRate, "%d", sr)
	}

	samples := make([]float64, 0, 1<<16)
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, rerr := d.Read(buf)
		chunk := buf[:n]
		if len(carry) > 0 {
			chunk = append(carry, chunk...)
			carry = nil
		}
		// one stereo frame is 4 bytes
		whole := len(chunk) - len(chunk)%4
		for i := 0; i < whole; i += 4 {
			left := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
			right := int16(uint16(chunk[i+2]) | uint16(chunk[i+3])<<8)
			samples = append(samples, (float64(left)+float64(right))/2/32768.0)
		}
		if whole < len(chunk) {
			carry = append([]byte(nil), chunk[whole:]...)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return Signal{}, decodeErr(op, rerr)
		}
	}
	if len(samples) == 0 {
		return Signal{}, decodeErr(op, ErrEmptySignal)
	}
	return Signal{Samples: samples, SampleRate: sr}, nil
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(r io.Reader) (Signal, error) {
	const op = "audio.decode_wav"
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return Signal{}, decodeErr(op, err)
		}
		rs = bytes.NewReader(data)
	}

	d := wav.NewDecoder(rs)
	if !d.IsValidFile() {
		return Signal{}, decodeErrf(op, ErrUnsupportedFormat, "not a valid wav file")
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Signal{}, decodeErrf(op, ErrUnsupportedFormat, "wav encoding %d is not integer PCM", d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Signal{}, decodeErr(op, err)
	}
	return monoFromIntBuffer(buf, int(d.BitDepth))
}

// monoFromIntBuffer averages interleaved channels and scales to [-1, 1].
func monoFromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (Signal, error) {
	const op = "audio.decode_wav"
	if buf == nil || buf.Format == nil {
		return Signal{}, decodeErr(op, ErrEmptySignal)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	if buf.Format.SampleRate <= 0 {
		return Signal{}, decodeErrf(op, ErrBadSampleRate, "%d", buf.Format.SampleRate)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return Signal{}, decodeErr(op, ErrEmptySignal)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit wav is unsigned
		offset = 128
	}
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		out[i] = sum / float64(channels)
	}
	return Signal{Samples: out, SampleRate: buf.Format.SampleRate}, nil
}
