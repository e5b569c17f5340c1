package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"swiftlingo/src/logutil"
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis       net.Listener
	incoming  chan *tcpConn
	port      int
	closeOnce sync.Once
}

func newTcpServer() Server { return &tcpServer{incoming: make(chan *tcpConn, 8)} }

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start := Ports().Start
	addr := net.JoinHostPort(residentHost, strconv.Itoa(start))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logutil.L().Warn("singleinstance: failed to bind", logutil.String("addr", addr), logutil.Error(err))
		return err
	}
	s.lis = lis
	s.port = start
	logutil.L().Info("singleinstance: listening", logutil.String("addr", addr))
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in singleinstance accept loop", logutil.Any("panic", r))
		}
	}()
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		remote := c.RemoteAddr().String()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		bw := bufio.NewWriter(c)
		if line == pingRequest {
			logutil.L().Debug("singleinstance: PING -> PONG", logutil.String("remote", remote))
			_, _ = bw.WriteString(pongResponse)
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		req, err := parseRequest(line)
		if err != nil {
			logutil.L().Warn("singleinstance: bad request", logutil.String("remote", remote), logutil.Error(err))
			_, _ = bw.WriteString(statusError + err.Error())
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		_ = c.SetDeadline(time.Time{})
		logutil.L().Info("singleinstance: request",
			logutil.String("remote", remote), logutil.String("action", req.Action),
			logutil.Bool("run_once", req.Kind == RequestRunOnce), logutil.Bool("stdout", req.OutputToStdout))
		select {
		case s.incoming <- &tcpConn{c: c, r: req, w: bw, br: br}:
		case <-ctx.Done():
			_ = c.Close()
			return
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tc, ok := <-s.incoming:
		if !ok {
			return nil, net.ErrClosed
		}
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.closeOnce.Do(func() {
		if s.lis != nil {
			_ = s.lis.Close()
			s.lis = nil
		}
	})
	return nil
}

type tcpConn struct {
	c  net.Conn
	r  Request
	w  *bufio.Writer
	br *bufio.Reader
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(text string) error {
	if _, err := tc.w.WriteString(statusSuccess); err != nil {
		return err
	}
	if len(text) > 0 {
		if _, err := tc.w.WriteString(text); err != nil {
			return err
		}
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if _, err := tc.w.WriteString(statusError + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
