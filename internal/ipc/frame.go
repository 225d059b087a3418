package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes mirrors the bus's own per-frame limit (internal/busclient), so a misbehaving local client can't
// make the adapter allocate unboundedly.
const maxFrameBytes = 64 << 20 // 64 MiB

// writeFrame writes payload as a single length-prefixed frame, the same on-wire shape busclient uses for each part
// of its two-part bus frames (internal/busclient/frame.go), generalized here to carry one whole envelope per frame
// instead of a separate topic part.
func writeFrame(w io.Writer, payload []byte) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
		defer bw.Flush()
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("ipc: write frame length: %w", err)
	}
	if _, err := bw.Write(payload); err != nil {
		return fmt.Errorf("ipc: write frame body: %w", err)
	}
	return bw.Flush()
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("ipc: frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("ipc: read frame body: %w", err)
	}
	return buf, nil
}
