package broker

import "net"

// setZeroLinger configures conn to discard any unsent data and send a RST on close, instead of lingering to flush
// buffered writes. The broker uses this on shutdown so a slow subscriber can't delay process exit.
func setZeroLinger(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
}
