// Package server implements the TCP network front-end: an accept loop
// plus one framed-protocol connection loop per client, dispatching each
// request onto a worker pool and writing back responses in request order.
// Grounded on the teacher's pkg/api.Server (net.Listen/Accept, a
// Start/Stop pair, logging each lifecycle event) with the gRPC transport
// swapped for the codec package's length-prefixed JSON frames.
package server

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/cuemby/kvs/pkg/codec"
	"github.com/cuemby/kvs/pkg/engine"
	"github.com/cuemby/kvs/pkg/kverr"
	"github.com/cuemby/kvs/pkg/log"
	"github.com/cuemby/kvs/pkg/metrics"
	"github.com/cuemby/kvs/pkg/pool"
)

// Server binds one TCP listener and serves the key/value wire protocol
// against a shared, cloneable engine handle.
type Server struct {
	addr string
	root engine.Cloner
	pool pool.Pool

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server that will listen on addr, dispatching requests onto
// pool against clones of root.
func New(addr string, root engine.Cloner, p pool.Pool) *Server {
	return &Server{addr: addr, root: root, pool: p}
}

// Start binds the listener and runs the accept loop until Stop closes the
// listener. Other accept failures are logged and the loop keeps accepting.
// It blocks until the accept loop exits and every open connection has
// ended.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return kverr.Wrap(kverr.Io, "listen", err)
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	log.WithComponent("server").Info().Str("addr", lis.Addr().String()).Msg("listening")
	metrics.UpdateComponent("server", true, "")

	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			log.WithComponent("server").Error().Err(err).Msg("accept failed")
			metrics.UpdateComponent("server", false, err.Error())
			continue
		}
		metrics.UpdateComponent("server", true, "")

		s.wg.Add(1)
		metrics.ServerConnectionsActive.Inc()
		go func() {
			defer s.wg.Done()
			defer metrics.ServerConnectionsActive.Dec()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener, so Start's accept loop takes no new
// connections. It does not close connections that are already open: Start
// returns only after each of them has been closed by its client or has
// failed.
func (s *Server) Stop() error {
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()
	if lis == nil {
		return nil
	}
	if err := lis.Close(); err != nil {
		return kverr.Wrap(kverr.Io, "close listener", err)
	}
	return nil
}

// Addr returns the listener's bound address. Only valid after Start has
// begun listening; intended for tests that bind to ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn runs the framed protocol loop for one connection: read a
// request, dispatch it to the pool against this connection's engine clone
// (made once when the connection starts), await the result, write the
// response, repeat. Responses are written in the
// same order requests were read because the next frame is only read
// after the current response has been sent.
func (s *Server) handleConn(conn net.Conn) {
	connLog := log.WithConn(conn.RemoteAddr().String())
	defer conn.Close()

	clone := s.root.Clone()
	defer clone.Close()

	for {
		req, err := codec.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				connLog.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		replies := make(chan codec.Response, 1)
		s.pool.Spawn(func() {
			replies <- dispatch(clone, req)
		})

		resp := <-replies
		if err := codec.WriteResponse(conn, resp); err != nil {
			connLog.Debug().Err(err).Msg("write failed, closing connection")
			return
		}
	}
}

// dispatch executes one request against eng and builds the corresponding
// response, converting every engine error into Response.Err per the
// protocol-tier error handling the spec requires.
func dispatch(eng engine.Engine, req codec.Request) codec.Response {
	switch {
	case req.Get != nil:
		value, ok, err := eng.Get(*req.Get)
		if err != nil {
			return codec.Err(err.Error())
		}
		if !ok {
			return codec.OkNull()
		}
		return codec.OkValue(value)

	case req.Set != nil:
		if err := eng.Set(req.Set.Key, req.Set.Value); err != nil {
			return codec.Err(err.Error())
		}
		return codec.OkNull()

	case req.Remove != nil:
		if err := eng.Remove(*req.Remove); err != nil {
			return codec.Err(err.Error())
		}
		return codec.OkNull()

	default:
		return codec.Err("empty request")
	}
}
