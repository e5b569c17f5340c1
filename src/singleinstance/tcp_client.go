package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryTrigger(ctx context.Context, action string) (bool, error) {
	delegated, _, err := c.delegate(ctx, Request{Kind: RequestTrigger, Action: action})
	return delegated, err
}

func (c *tcpClient) TryRunOnce(ctx context.Context, action string, outputToStdout bool) (bool, string, error) {
	return c.delegate(ctx, Request{Kind: RequestRunOnce, Action: action, OutputToStdout: outputToStdout})
}

func (c *tcpClient) delegate(ctx context.Context, req Request) (bool, string, error) {
	addr, _, ok := findResident(probeTimeout(ctx, 2*time.Second))
	if !ok {
		return false, "", nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, "", nil
	}
	defer conn.Close()
	text, err := roundTrip(ctx, conn, req)
	return true, text, err
}

func roundTrip(ctx context.Context, conn net.Conn, req Request) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(encodeRequest(req)); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case statusSuccess:
		return string(body), nil
	case statusError:
		return "", errors.New(string(body))
	}
	return "", errors.New("unexpected response from resident instance")
}
