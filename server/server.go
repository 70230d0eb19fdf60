// Package server implements the TCP front end (C6): it accepts
// connections, owns a cache.Cache, and runs a per-connection
// protocol.Parser+protocol.Interpreter pair over each one.
package server

import (
	"bytes"
	"net"
	"strconv"
	"sync"

	"github.com/nkyo/gocached/cache"
	"github.com/nkyo/gocached/logger"
	"github.com/nkyo/gocached/protocol"
)

// eot is the byte a client sends to request an immediate disconnect.
const eot = 0x04

// Server listens on a TCP port and serves the memcached ASCII
// protocol against a single shared cache.Cache.
type Server struct {
	cache    *cache.Cache
	cfg      *config
	listener net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New builds a Server bound to c. It does not start listening; call
// Start for that.
func New(c *cache.Cache, opts ...Option) *Server {
	return &Server{
		cache: c,
		cfg:   newConfig(opts...),
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and spawns the accept loop in the
// background. It returns once the bind has succeeded or failed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", addrFor(s.cfg.port))
	if err != nil {
		return err
	}
	s.listener = ln
	s.registerMetrics()

	logger.Infof("server: listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address. Only valid after Start
// succeeds.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func addrFor(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			logger.Warnf("server: accept error: %v", err)
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		if !s.cfg.disableDiagnostic {
			connectionsActive.Inc()
			connectionsTotal.Inc()
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop stops accepting new connections and waits for all in-flight
// connections to close.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closing = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		if !s.cfg.disableDiagnostic {
			connectionsActive.Dec()
		}
		_ = conn.Close()
	}()

	if tc, ok := conn.(*net.TCPConn); ok {
		// Nagle disabled by default; WithDelay restores the OS default
		// of coalescing small writes.
		_ = tc.SetNoDelay(!s.cfg.delay)
	}

	parser := protocol.NewParser(protocol.NewInterpreter(s.cache))
	buf := make([]byte, 64*1024)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		chunk := buf[:n]

		if chunk[0] == eot {
			return
		}

		if s.cfg.fast {
			if _, err := conn.Write([]byte("ERROR\r\n")); err != nil {
				return
			}
			continue
		}

		if done := s.feedChunk(conn, parser, chunk); done {
			return
		}
	}
}

// feedChunk splits chunk at the first CRLF into (line, rest), feeds
// line to the parser, and if rest is non-empty feeds it too, writing
// each non-empty response with its own trailing CRLF. It returns true
// if the connection should close (quit sentinel or write failure).
func (s *Server) feedChunk(conn net.Conn, parser *protocol.Parser, chunk []byte) bool {
	line, rest, hasRest := splitCRLF(chunk)

	if closeAfter := s.feedSegment(conn, parser, line); closeAfter {
		return true
	}
	if hasRest && len(rest) > 0 {
		return s.feedSegment(conn, parser, rest)
	}
	return false
}

func (s *Server) feedSegment(conn net.Conn, parser *protocol.Parser, segment []byte) bool {
	resp := parser.Feed(segment)
	if resp == protocol.QuitSentinel {
		return true
	}
	if resp == "" {
		return false
	}
	if _, err := conn.Write([]byte(resp + "\r\n")); err != nil {
		return true
	}
	return false
}

// splitCRLF splits buf at the first "\r\n", returning the line before
// it and the remainder after it. If no CRLF is present, the whole
// buffer is returned as the line with hasRest=false.
func splitCRLF(buf []byte) (line, rest []byte, hasRest bool) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return buf, nil, false
	}
	return buf[:idx], buf[idx+2:], true
}
