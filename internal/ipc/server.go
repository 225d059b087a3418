// Package ipc implements the gateway's local IPC adapter (spec §4.8c, C15): a trusted request/reply endpoint over a
// UNIX domain socket (POSIX) or a loopback TCP fallback, using the same length-prefixed envelope framing idiom as
// internal/busclient. Every connection is served strictly one request at a time; every request is authenticated as
// the fixed TRUSTED_LOCAL identity and run through the same pipeline the REST and WebSocket adapters use.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
)

// adapterSource identifies this adapter as an envelope's origin before the router republishes it.
const adapterSource = "ipc-adapter"

// localRemoteIP is what every local IPC connection reports to the security filter's IP checks. A UNIX domain
// socket's peer address carries no usable IP, and the transport itself -- not a source address -- is the trust
// boundary spec §4.8c relies on.
const localRemoteIP = "127.0.0.1"

// Server is the local IPC adapter.
type Server struct {
	cfg  Config
	deps pipeline.Dependencies
	log  zerolog.Logger

	mu         sync.Mutex
	ln         net.Listener
	socketPath string // set only when ln is a UNIX socket this Server bound, so Stop knows to unlink it
	wg         sync.WaitGroup
}

// New creates a Server. It does not listen until Start is called.
func New(cfg Config, deps pipeline.Dependencies, log zerolog.Logger) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("component", "ipc").Logger(),
	}
}

// Start binds the adapter's socket and begins accepting connections in the background. It returns once the socket
// is bound; ctx governs the lifetime of in-flight RouteMessage calls, not the accept loop itself (use Stop to tear
// that down).
func (s *Server) Start(ctx context.Context) error {
	ln, socketPath, err := s.listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.socketPath = socketPath
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	s.log.Info().Str("addr", ln.Addr().String()).Msg("local IPC adapter listening")
	return nil
}

// listen binds a UNIX domain socket at cfg.SocketPath on POSIX platforms, falling back to cfg.TCPAddr on Windows or
// whenever the UNIX socket can't be bound (e.g. a permissions problem on the parent directory).
func (s *Server) listen() (net.Listener, string, error) {
	if runtime.GOOS != "windows" && s.cfg.SocketPath != "" {
		_ = os.Remove(s.cfg.SocketPath) // clear a stale socket file left by an unclean shutdown
		ln, err := net.Listen("unix", s.cfg.SocketPath)
		if err == nil {
			if chmodErr := os.Chmod(s.cfg.SocketPath, 0o600); chmodErr != nil {
				ln.Close()
				return nil, "", fmt.Errorf("ipc: chmod socket %s: %w", s.cfg.SocketPath, chmodErr)
			}
			return ln, s.cfg.SocketPath, nil
		}
		s.log.Warn().Err(err).Str("path", s.cfg.SocketPath).Msg("failed to bind UNIX socket, falling back to TCP")
	}

	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return nil, "", fmt.Errorf("ipc: listen on %s: %w", s.cfg.TCPAddr, err)
	}
	return ln, "", nil
}

// Stop closes the listener, waits for every in-flight connection handler to finish its current request, and
// unlinks the socket file if this Server created one. Stop is idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln, socketPath := s.ln, s.socketPath
	s.ln = nil
	s.socketPath = ""
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()

	if socketPath != "" {
		_ = os.Remove(socketPath)
	}
	s.log.Info().Msg("local IPC adapter stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one connection serially: it reads a request frame, runs the pipeline, writes the reply frame,
// and only then reads the next request. A connection never has two requests in flight.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		raw, err := readFrame(r)
		if err != nil {
			return // client disconnect or malformed stream ends this connection
		}

		reply := s.handleRequest(ctx, raw)

		replyRaw, err := json.Marshal(reply)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to marshal reply frame")
			return
		}
		if err := writeFrame(conn, replyRaw); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, raw []byte) Response {
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errorResponse(ferror.New(ferror.KindValidation, "request is not a valid message envelope"))
	}
	env.Metadata.Source = adapterSource

	outcome, err := pipeline.Run(ctx, s.deps, pipeline.Request{
		RemoteIP:    localRemoteIP,
		Credentials: auth.Credentials{IsLocalIPC: true},
		Envelope:    env,
	})
	if err != nil {
		return errorResponse(ferror.From(err))
	}
	return successResponse(outcome.Result)
}
