package busclient

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes mirrors the broker's own limit so a misbehaving broker can't make the client allocate unboundedly.
const maxFrameBytes = 64 << 20 // 64 MiB

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("busclient: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("busclient: write frame body: %w", err)
	}
	return nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("busclient: frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("busclient: read frame body: %w", err)
	}
	return buf, nil
}

// writeMessage writes a two-part frame: topic then body.
func writeMessage(w io.Writer, topic string, body []byte) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
		defer bw.Flush()
	}
	if err := writeFrame(bw, []byte(topic)); err != nil {
		return err
	}
	if err := writeFrame(bw, body); err != nil {
		return err
	}
	return bw.Flush()
}

// readMessage reads a two-part frame written by writeMessage.
func readMessage(r *bufio.Reader) (topic string, body []byte, err error) {
	topicBytes, err := readFrame(r)
	if err != nil {
		return "", nil, err
	}
	body, err = readFrame(r)
	if err != nil {
		return "", nil, err
	}
	return string(topicBytes), body, nil
}
