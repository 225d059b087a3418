package broker

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("hello world")); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	got, err := readFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("readFrame() = %q, want %q", got, "hello world")
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], maxFrameBytes+1)
	buf.Write(lenBuf[:])

	_, err := readFrame(bufio.NewReader(&buf))
	if err == nil {
		t.Error("readFrame() with oversized length: want error")
	}
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := message{topic: "conversation/message", body: []byte(`{"hello":"world"}`)}
	if err := writeMessage(&buf, msg); err != nil {
		t.Fatalf("writeMessage() error = %v", err)
	}

	got, err := readMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if got.topic != msg.topic || string(got.body) != string(msg.body) {
		t.Errorf("readMessage() = %+v, want %+v", got, msg)
	}
}
