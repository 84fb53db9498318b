// Package server runs the TCP front end: length-prefixed XML requests in,
// raw XML replies out, one worker per connection.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"exchange-core/src/wire"
)

// Server accepts exchange clients and feeds their requests to the dispatcher.
type Server struct {
	addr       string
	dispatcher *wire.Dispatcher

	listener net.Listener
	closing  atomic.Bool
	wg       conc.WaitGroup
}

func New(addr string, dispatcher *wire.Dispatcher) *Server {
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
	}
}

// Listen binds the TCP address without accepting yet, so callers can learn
// the bound port before serving.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	log.Info().Str("addr", listener.Addr().String()).Msg("Exchange server listening")
	return nil
}

// Serve blocks accepting connections until Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}

		s.wg.Go(func() {
			s.handleConn(ctx, conn)
		})
	}
}

// ListenAndServe binds and serves in one call.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the bound address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections to finish.
func (s *Server) Shutdown() {
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

// handleConn serves one client for the lifetime of its connection, one
// request at a time.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("Client connected")

	defer func() {
		_ = conn.Close()
		log.Info().Str("remote", remote).Msg("Client disconnected")
	}()

	reader := bufio.NewReader(conn)

	for {
		body, err := wire.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			log.Warn().Err(err).Str("remote", remote).Msg("Bad request frame")
			// edge case: an unreadable length line poisons the stream, so the
			// connection is dropped rather than resynchronised blindly
			_, _ = conn.Write(wire.TopLevelError("Invalid message framing"))
			return
		}

		response := s.dispatcher.Process(ctx, body)
		if _, err := conn.Write(response); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("Failed to write response")
			return
		}
	}
}
