package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInvalidWAV is returned when WAV data cannot be decoded
var ErrInvalidWAV = errors.New("invalid WAV data")

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtChunkMinSize = 16
	wavHeaderSize   = 44
)

// wavHeader is the canonical 44-byte header written for mono PCM-16 audio
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAV is decoded PCM audio with its format
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	PCM           []byte
}

// Duration returns the playback length of the audio
func (w *WAV) Duration() time.Duration {
	bytesPerSecond := w.SampleRate * w.Channels * w.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(w.PCM)) * time.Second / time.Duration(bytesPerSecond)
}

// WriteWAV writes little-endian mono PCM-16 bytes as a WAV file
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm16 data length must be even, got %d bytes", len(pcm))
	}

	const (
		numChannels   = uint16(1)
		bitsPerSample = uint16(16)
	)
	dataSize := uint32(len(pcm))

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkMinSize,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// EncodeWAV encodes little-endian mono PCM-16 bytes into WAV format
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := WriteWAV(buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes an uncompressed PCM WAV file. Chunks other than "fmt "
// and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < riffHeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWAV, riffHeaderSize, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	}

	var (
		wav     WAV
		haveFmt bool
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize
		if size < 0 || body+size > len(data) {
			// Some writers leave the data size unset while streaming
			if id == "data" {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < fmtChunkMinSize {
				return nil, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrInvalidWAV, size)
			}
			chunk := data[body : body+size]
			if format := binary.LittleEndian.Uint16(chunk[0:2]); format != 1 {
				return nil, fmt.Errorf("%w: unsupported audio format %d (only PCM is supported)", ErrInvalidWAV, format)
			}
			wav.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			wav.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			wav.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			wav.PCM = data[body : body+size]
			if wav.SampleRate <= 0 || wav.Channels <= 0 {
				return nil, fmt.Errorf("%w: invalid format (rate %d, channels %d)", ErrInvalidWAV, wav.SampleRate, wav.Channels)
			}
			return &wav, nil
		}

		// Chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// DecodeMonoPCM16 decodes a WAV file and checks that it holds mono 16-bit PCM
func DecodeMonoPCM16(data []byte) (*WAV, error) {
	wav, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if wav.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d (only 16-bit is supported)", ErrInvalidWAV, wav.BitsPerSample)
	}
	if wav.Channels != 1 {
		return nil, fmt.Errorf("%w: unsupported channel count %d (only mono is supported)", ErrInvalidWAV, wav.Channels)
	}
	return wav, nil
}
