package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

const defaultProbeTimeout = 300 * time.Millisecond

// DetectResidentPort reports the port of a resident answering PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	_, port, ok := findResident(probeTimeout(ctx, defaultProbeTimeout))
	return port, ok
}

func probeTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < fallback {
			return d
		}
	}
	return fallback
}

// findResident walks the port range and returns the first address whose
// listener speaks the PING/PONG handshake.
func findResident(timeout time.Duration) (string, int, bool) {
	r := Ports()
	for port := r.Start; port <= r.End; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if ping(addr, timeout) {
			return addr, port, true
		}
	}
	return "", 0, false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
