// Package tcp implements the relay's wire transport: length-prefixed JSON
// frames over TCP, one session handler per accepted connection, and the
// protocol dispatcher tying the registry and persistence together.
package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"chat-relay/errors"
)

// Frame layout: a big-endian uint32 payload length followed by exactly
// that many bytes of UTF-8 JSON. The explicit prefix removes the
// ambiguity of short-read framing, where a payload whose length is a
// multiple of the read buffer cannot be told apart from a partial read.
const framePrefixSize = 4

// ReadFrame reads one complete frame off r. It returns io.EOF untouched
// on a clean close before the prefix so callers can tell a peer hangup
// from a protocol violation.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [framePrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if int(length) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", errors.ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("short frame: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, payload []byte, maxSize int) error {
	if len(payload) > maxSize {
		return fmt.Errorf("%w: %d > %d", errors.ErrFrameTooLarge, len(payload), maxSize)
	}

	var header [framePrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
