package busclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/broker"
)

func TestRunWithReconnectConnectsOnceBrokerAppears(t *testing.T) {
	pubLn, _ := net.Listen("tcp", "127.0.0.1:0")
	pubPort := pubLn.Addr().(*net.TCPAddr).Port
	subLn, _ := net.Listen("tcp", "127.0.0.1:0")
	subPort := subLn.Addr().(*net.TCPAddr).Port
	pubLn.Close()
	subLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New("test", zerolog.Nop())
	go c.RunWithReconnect(ctx, "127.0.0.1", pubPort, subPort)

	// The broker isn't up yet; the client should be backing off, not connected.
	time.Sleep(50 * time.Millisecond)
	if c.Connected() {
		t.Fatal("Connected() = true before broker started")
	}

	b := broker.New(zerolog.Nop())
	if err := b.Start("127.0.0.1", pubPort, subPort); err != nil {
		t.Fatalf("broker Start() error = %v", err)
	}
	defer b.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Connected() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("client never connected after broker became available")
}
