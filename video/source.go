// Package video reads the on-disk MJPEG frame files served by origins: a
// flat file of concatenated frames, each prefixed by a 5-byte ASCII decimal
// length, looped forever once exhausted.
package video

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// lengthPrefixSize is the width of the ASCII decimal frame-length header.
const lengthPrefixSize = 5

// Source reads frames from a single video file, looping back to the start
// on end-of-file. The frame counter is monotonically increasing across
// loops; callers use it (mod 2^16) as the RTP sequence number.
type Source struct {
	file    *os.File
	reader  *bufio.Reader
	counter uint64
}

// Open opens the video file at path for frame-by-frame reading.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("video: open %s: %w", path, err)
	}
	return &Source{file: f, reader: bufio.NewReader(f)}, nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	return s.file.Close()
}

// NextFrame returns the next frame's payload bytes and its frame number.
// On reaching end-of-file it seeks back to the start of the file and
// continues; it returns io.EOF only when the start of the file holds no
// complete length header either (for example, an empty file). The
// frame number is 1-indexed (the first frame returned is 1, not 0) and
// monotonically increasing across loops; callers use it (mod 2^16) as the
// RTP sequence number.
func (s *Source) NextFrame() ([]byte, uint64, error) {
	payload, err := s.readOne()
	if err == io.EOF {
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return nil, 0, fmt.Errorf("video: rewind: %w", seekErr)
		}
		s.reader.Reset(s.file)
		payload, err = s.readOne()
	}
	if err != nil {
		return nil, 0, err
	}

	s.counter++
	return payload, s.counter, nil
}

func (s *Source) readOne() ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(s.reader, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	length, err := strconv.Atoi(string(lenBuf[:]))
	if err != nil {
		return nil, fmt.Errorf("video: malformed frame length header %q: %w", lenBuf[:], err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return nil, fmt.Errorf("video: short frame body: %w", err)
	}
	return payload, nil
}
