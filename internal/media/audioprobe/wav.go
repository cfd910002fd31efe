package audioprobe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVHeader holds the fields of a RIFF/WAVE file needed for duration.
type WAVHeader struct {
	AudioFormat   uint16
	Channels      int
	SampleRate    int
	ByteRate      int
	BitsPerSample int
	DataBytes     int64
}

// DurationSeconds derives playback length from the data chunk size.
func (h WAVHeader) DurationSeconds() float64 {
	if h.ByteRate <= 0 {
		return 0
	}
	return float64(h.DataBytes) / float64(h.ByteRate)
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// ReadWAVFile parses the header of the WAV file at path.
func ReadWAVFile(path string) (WAVHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return WAVHeader{}, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return WAVHeader{}, err
	}
	return ReadWAV(file, info.Size())
}

// ReadWAV walks the RIFF chunks of r. A data chunk whose declared size runs
// past the end of the file, as left by an interrupted recorder, is clamped
// to the bytes actually present.
func ReadWAV(r io.ReadSeeker, fileSize int64) (WAVHeader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVHeader{}, fmt.Errorf("%w: %w", errNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVHeader{}, errNotWAV
	}

	var header WAVHeader
	haveFmt := false
	offset := int64(12)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return WAVHeader{}, fmt.Errorf("wav: missing data chunk: %w", err)
		}
		offset += 8
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVHeader{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return WAVHeader{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			header.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			header.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			header.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			header.ByteRate = int(binary.LittleEndian.Uint32(body[8:12]))
			header.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if err := skip(r, size-16+size%2); err != nil {
				return WAVHeader{}, err
			}
		case "data":
			if !haveFmt {
				return WAVHeader{}, errors.New("wav: data chunk before fmt chunk")
			}
			if remaining := fileSize - offset; fileSize > 0 && size > remaining {
				size = remaining
			}
			header.DataBytes = size
			if header.SampleRate <= 0 || header.ByteRate <= 0 {
				return WAVHeader{}, fmt.Errorf("wav: invalid sample rate %d or byte rate %d", header.SampleRate, header.ByteRate)
			}
			return header, nil
		default:
			if err := skip(r, size+size%2); err != nil {
				return WAVHeader{}, err
			}
		}
		offset += size + size%2
	}
}

func skip(r io.Seeker, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := r.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("wav: skip chunk: %w", err)
	}
	return nil
}
