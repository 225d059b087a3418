// Package broker implements the gateway's message bus broker: a pub/sub relay exposing a publisher-facing TCP
// endpoint and a subscriber-facing TCP endpoint, forwarding two-part frames between them by topic prefix.
package broker

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame (topic or envelope) to guard the broker against a malicious or malfunctioning
// peer advertising an unbounded length prefix.
const maxFrameBytes = 64 << 20 // 64 MiB

// writeFrame writes one length-prefixed frame: a uint32 big-endian length followed by that many bytes.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("broker: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("broker: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame written by writeFrame.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("broker: frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("broker: read frame body: %w", err)
	}
	return buf, nil
}

// message is a two-part wire message: topic followed by an opaque envelope body.
type message struct {
	topic string
	body  []byte
}

// writeMessage writes a message as two consecutive length-prefixed frames.
func writeMessage(w io.Writer, m message) error {
	if err := writeFrame(w, []byte(m.topic)); err != nil {
		return err
	}
	return writeFrame(w, m.body)
}

// readMessage reads a two-frame message written by writeMessage.
func readMessage(r *bufio.Reader) (message, error) {
	topic, err := readFrame(r)
	if err != nil {
		return message{}, err
	}
	body, err := readFrame(r)
	if err != nil {
		return message{}, err
	}
	return message{topic: string(topic), body: body}, nil
}

// subscribeControlTopic is a reserved topic a subscriber connection sends (instead of a forwarded message) to
// register a prefix filter. Its body is the raw prefix bytes.
const subscribeControlTopic = "\x00subscribe"

// unsubscribeControlTopic unregisters a previously registered prefix.
const unsubscribeControlTopic = "\x00unsubscribe"
