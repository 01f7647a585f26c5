package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/metrics"
	"tkgateway/internal/protocol/tk10x"
)

const writeTimeout = 10 * time.Second

// FrameHandler processes one complete frame and returns the bytes to write
// back, if any.
type FrameHandler interface {
	HandleFrame(ctx context.Context, sess *tk10x.Session, frame []byte) []byte
}

type Config struct {
	Port            int
	IdleTimeout     time.Duration
	MaxPacketLength int
	EndOfStream     bool
	Terminators     []byte
	KeepAlivePeriod time.Duration
}

type TCPServer struct {
	cfg      Config
	handler  FrameHandler
	logger   *zap.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewTCPServer(cfg Config, handler FrameHandler, logger *zap.Logger) *TCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Terminators) == 0 {
		cfg.Terminators = DefaultTerminators
	}
	if cfg.KeepAlivePeriod <= 0 {
		cfg.KeepAlivePeriod = 60 * time.Second
	}
	return &TCPServer{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and accepts connections in the background.
func (s *TCPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", s.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "failed to start TCP server")
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("TCP server listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the bound listener address.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines until ctx expires.
func (s *TCPServer) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("error accepting connection", zap.Error(err))
			continue
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConnection(s.ctx, conn)
		}()
	}
}

func (s *TCPServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.TCPConnections.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(s.cfg.KeepAlivePeriod)
	}

	ip, port := remoteEndpoint(conn.RemoteAddr())
	sess := tk10x.NewSession(ip, port, s.cfg.EndOfStream)
	log := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Info("new connection")

	reader := NewFrameReader(conn, sess, s.cfg.MaxPacketLength, s.cfg.Terminators)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		frame, err := reader.Next()
		if err != nil {
			s.closeReason(log, sess, err)
			return
		}
		log.Debug("frame", zap.Stringer("dialect", sess.Dialect), zap.ByteString("data", frame))

		ack := s.handler.HandleFrame(ctx, sess, frame)
		if len(ack) == 0 {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(ack); err != nil {
			log.Error("error writing ack", zap.Error(err))
			return
		}
	}
}

func (s *TCPServer) closeReason(log *zap.Logger, sess *tk10x.Session, err error) {
	log = log.With(zap.String("modemId", sess.ModemID))
	switch {
	case isEOF(err):
		log.Info("connection closed by device")
	case isTimeout(err):
		metrics.FramesDropped.WithLabelValues("idle").Inc()
		log.Info("idle timeout, closing connection")
	case errors.Is(err, ErrPacketTooLong):
		metrics.FramesDropped.WithLabelValues("too_long").Inc()
		log.Error("packet exceeds maximum length, closing connection", zap.Int("max", s.cfg.MaxPacketLength))
	case errors.Is(err, net.ErrClosed):
		log.Info("connection closed on shutdown")
	default:
		log.Error("error reading from connection", zap.Error(err))
	}
}

func remoteEndpoint(addr net.Addr) (string, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	if addr == nil {
		return "", 0
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
